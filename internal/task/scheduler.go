package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Run performs one bounded-concurrency sweep over the tasks that are idle
// right now. It blocks until every snapshotted task has either been
// dispatched through its upload phase or skipped, and no upload is still in
// flight. Poll loops detach and do not hold the run open.
//
// Only one run can be active per manager; a second invocation returns
// ErrRunActive without touching the queue. The limit and reference come from
// the RunConfig captured by the caller and stay fixed for the whole run.
func (m *Manager) Run(ctx context.Context, rc RunConfig) error {
	limit := rc.Limit
	if limit < 1 {
		limit = 1
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	defer m.running.Store(false)

	snapshot := m.store.IdleIDs()
	if len(snapshot) == 0 {
		return nil
	}
	log.Info().Int("tasks", len(snapshot)).Int("limit", limit).Msg("batch run started")

	// Each in-flight upload holds one slot; polls never do, so the number of
	// jobs processing remotely can exceed the limit.
	slots := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var launched, skipped int
	var uploadFailures atomic.Int64

	for _, id := range snapshot {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			log.Warn().Err(ctx.Err()).Msg("batch run aborted")
			return ctx.Err()
		}

		current, ok := m.store.Get(id)
		if !ok || current.Status != StatusIdle || current.PayloadPath == "" {
			// removed after the snapshot was taken
			skipped++
			<-slots
			continue
		}

		launched++
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-slots }()
			if err := m.upload(ctx, id, rc.Reference); err != nil {
				uploadFailures.Add(1)
			}
		}(id)
	}

	wg.Wait()
	log.Info().
		Int("launched", launched).
		Int("skipped", skipped).
		Int64("upload_failures", uploadFailures.Load()).
		Msg("batch run finished")
	return nil
}

// runAuto is invoked by the debounce trigger after appends settle.
func (m *Manager) runAuto() {
	rc := m.runConfig()
	if err := m.Run(m.baseContext(), rc); err != nil {
		if errors.Is(err, ErrRunActive) {
			log.Debug().Msg("auto run skipped: batch already active")
			return
		}
		log.Warn().Err(err).Msg("auto run ended early")
	}
}
