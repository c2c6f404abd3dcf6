package task

import "testing"

func set(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func TestResolveNameNoCollision(t *testing.T) {
	got := ResolveName("essay.mp3", set(), set())
	if got != "essay.mp3" {
		t.Fatalf("expected unchanged name, got %q", got)
	}
}

func TestResolveNameQueueCollisionIsExact(t *testing.T) {
	// full-name match collides
	if got := ResolveName("essay.mp3", set("essay.mp3"), set()); got != "essay_01.mp3" {
		t.Fatalf("expected essay_01.mp3, got %q", got)
	}
	// a queue entry with the same stem but different extension does not
	if got := ResolveName("essay.mp3", set("essay.wav"), set()); got != "essay.mp3" {
		t.Fatalf("expected essay.mp3, got %q", got)
	}
}

func TestResolveNameHistoryCollisionIsStemOnly(t *testing.T) {
	if got := ResolveName("essay.mp3", set(), set("essay")); got != "essay_01.mp3" {
		t.Fatalf("expected essay_01.mp3, got %q", got)
	}
}

func TestResolveNameIncrementsUntilFree(t *testing.T) {
	queue := set("essay.mp3", "essay_01.mp3", "essay_02.mp3")
	if got := ResolveName("essay.mp3", queue, set()); got != "essay_03.mp3" {
		t.Fatalf("expected essay_03.mp3, got %q", got)
	}
}

func TestResolveNameSameBatchScenario(t *testing.T) {
	// two files named essay.mp3 added in the same batch with no history
	queue := set()
	first := ResolveName("essay.mp3", queue, set())
	queue[first] = struct{}{}
	second := ResolveName("essay.mp3", queue, set())
	if first != "essay.mp3" || second != "essay_01.mp3" {
		t.Fatalf("expected essay.mp3/essay_01.mp3, got %q/%q", first, second)
	}
}

func TestResolveNameNeverReturnsTakenName(t *testing.T) {
	queue := set("a.mp3", "a_01.mp3")
	history := set("a_02", "b")
	for _, proposed := range []string{"a.mp3", "b.wav", "c.mp3"} {
		got := ResolveName(proposed, queue, history)
		if _, taken := queue[got]; taken {
			t.Fatalf("resolved name %q is in queue set", got)
		}
		if _, taken := history[Stem(got)]; taken {
			t.Fatalf("resolved stem %q is in history set", Stem(got))
		}
	}
}

func TestResolveNameIsDeterministicAndAdvances(t *testing.T) {
	queue := set("essay.mp3")
	first := ResolveName("essay.mp3", queue, set())
	second := ResolveName("essay.mp3", queue, set())
	if first != second {
		t.Fatalf("same inputs must resolve identically: %q vs %q", first, second)
	}
	queue[first] = struct{}{}
	third := ResolveName("essay.mp3", queue, set())
	if third == first {
		t.Fatalf("expected a fresh name after claiming %q", first)
	}
}

func TestResolveNameWithoutExtension(t *testing.T) {
	if got := ResolveName("recording", set("recording"), set()); got != "recording_01" {
		t.Fatalf("expected recording_01, got %q", got)
	}
}
