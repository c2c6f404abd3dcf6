package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"scorebatch/internal/remote"
)

// Reports returns the engine's historical listing of finished jobs.
func (m *Manager) Reports(ctx context.Context) ([]remote.Report, error) {
	return m.engine.ListReports(ctx)
}

// LoadFromDisk restores persisted queue records into memory.
// Tasks caught mid-upload by the previous shutdown become errors; tasks that
// already hold a job identifier resume their poll loops, since the engine
// kept processing while this process was down.
func (m *Manager) LoadFromDisk() error {
	loaded, err := m.records.Load()
	if err != nil {
		return fmt.Errorf("load queue records: %w", err)
	}

	resumed := 0
	for _, t := range loaded {
		switch {
		case t.Status.Terminal():
			m.store.Append(t)
		case t.JobID != "":
			m.store.Append(t)
			m.startPoll(t.ID, t.JobID)
			resumed++
		default:
			t.Status = StatusError
			t.ErrorMessage = "interrupted by restart"
			m.records.DiscardPayload(t.PayloadPath)
			t.PayloadPath = ""
			m.store.Append(t)
			m.persist(t.ID)
		}
	}
	if len(loaded) > 0 {
		log.Info().Int("loaded", len(loaded)).Int("resumed_polls", resumed).Msg("queue restored from disk")
	}
	return nil
}

// SeedHistory pulls the engine's historical listing to prime the name
// registry and to re-display recent completions. History records carry no
// payload and can never be re-submitted.
func (m *Manager) SeedHistory(ctx context.Context) error {
	reports, err := m.engine.ListReports(ctx)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}

	knownJobs := make(map[string]struct{})
	for _, t := range m.store.Snapshot() {
		if t.JobID != "" {
			knownJobs[t.JobID] = struct{}{}
		}
	}

	added := 0
	for _, r := range reports {
		m.rememberStem(Stem(r.Name))
		if _, known := knownJobs[r.ID]; known {
			continue
		}
		m.store.Append(&Task{
			ID:             uuid.NewString(),
			Name:           r.Name,
			Status:         StatusDone,
			JobID:          r.ID,
			ResultLocation: r.URL,
			CreatedAt:      time.Unix(int64(r.Timestamp), 0),
		})
		added++
	}
	log.Info().Int("reports", len(reports)).Int("displayed", added).Msg("history seeded")
	return nil
}
