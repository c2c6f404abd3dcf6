package task

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveName picks a unique display name for a new submission.
//
// Collisions against the active queue compare the full name exactly, while
// collisions against history compare the stem only: the engine's listing
// reports records by stem, so "essay.mp3" must yield to a historical "essay"
// even though the extensions never matched. The asymmetry is deliberate.
//
// On collision a zero-padded counter is appended to the stem (essay_01.mp3,
// essay_02.mp3, ...) until a free name is found. Pure function; callers must
// supply a snapshot taken at the moment of task creation.
func ResolveName(proposed string, queueNames, historyStems map[string]struct{}) string {
	ext := filepath.Ext(proposed)
	stem := strings.TrimSuffix(proposed, ext)

	if !nameTaken(proposed, stem, queueNames, historyStems) {
		return proposed
	}
	for i := 1; ; i++ {
		candidateStem := fmt.Sprintf("%s_%02d", stem, i)
		candidate := candidateStem + ext
		if !nameTaken(candidate, candidateStem, queueNames, historyStems) {
			return candidate
		}
	}
}

func nameTaken(name, stem string, queueNames, historyStems map[string]struct{}) bool {
	if _, ok := queueNames[name]; ok {
		return true
	}
	_, ok := historyStems[stem]
	return ok
}

// Stem strips the extension from a file name.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
