package task

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"scorebatch/internal/remote"
)

// upload is the slot-occupying phase of a task: submit the payload and
// obtain a job identifier. It returns as soon as the engine acknowledges the
// upload; remote processing continues under the detached poll loop. Failures
// are recorded on the task and reported to the scheduler only so the slot
// can be released.
func (m *Manager) upload(ctx context.Context, id, reference string) error {
	var payloadPath, name string
	dispatched := false
	ok := m.store.Update(id, func(t *Task) {
		if t.Status != StatusIdle {
			return
		}
		t.Status = StatusUploading
		payloadPath = t.PayloadPath
		name = t.Name
		dispatched = true
	})
	if !ok || !dispatched {
		return ErrTaskNotFound
	}
	m.persist(id)

	payload, err := os.Open(payloadPath) //nolint:gosec // path is controlled by application
	if err != nil {
		m.failTask(id, "payload unavailable: "+err.Error())
		return err
	}
	result, err := m.engine.Submit(ctx, payload, name, reference, m.mode)
	_ = payload.Close()
	if err != nil {
		m.failTask(id, err.Error())
		log.Warn().Str("task_id", id).Str("name", name).Err(err).Msg("upload failed")
		return err
	}

	// The payload is never re-submitted once a job exists; drop the spool.
	m.store.Update(id, func(t *Task) {
		t.Status = StatusQueued
		t.JobID = result.JobID
		t.PayloadPath = ""
	})
	m.records.DiscardPayload(payloadPath)
	m.persist(id)
	log.Info().Str("task_id", id).Str("job_id", result.JobID).Int("queue_position", result.QueuePosition).Msg("upload accepted")

	m.startPoll(id, result.JobID)
	return nil
}

// startPoll launches the detached poll loop for a job. The loop is bounded
// by the base context, a per-task cancel (fired on removal/clear), and the
// maximum wait.
func (m *Manager) startPoll(id, jobID string) {
	pollCtx, cancel := context.WithTimeout(m.baseContext(), m.pollMaxWait)
	m.setCancel(id, cancel)
	m.pollsWG.Add(1)
	go func() {
		defer m.pollsWG.Done()
		defer m.clearCancel(id)
		defer cancel()
		m.poll(pollCtx, id, jobID)
	}()
}

// poll checks job status on a fixed cadence until a terminal status or a
// transport error: first check one second after the job was accepted, every
// later check two seconds after the previous response. No backoff, no retry
// of failed checks.
func (m *Manager) poll(ctx context.Context, id, jobID string) {
	delay := m.pollInitialDelay
	for {
		select {
		case <-ctx.Done():
			m.finishCancelledPoll(ctx, id)
			return
		case <-time.After(delay):
		}

		status, err := m.engine.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				m.finishCancelledPoll(ctx, id)
				return
			}
			m.failTask(id, err.Error())
			log.Warn().Str("task_id", id).Str("job_id", jobID).Err(err).Msg("status check failed")
			return
		}

		switch status.State {
		case remote.StateCompleted:
			m.store.Update(id, func(t *Task) {
				if t.Status.Terminal() {
					return
				}
				t.Status = StatusDone
				t.ResultLocation = status.ResultURL
			})
			m.persist(id)
			log.Info().Str("task_id", id).Str("job_id", jobID).Str("result", status.ResultURL).Msg("scoring completed")
			return
		case remote.StateFailed:
			reason := status.Error
			if reason == "" {
				reason = "scoring failed"
			}
			m.failTask(id, reason)
			log.Warn().Str("task_id", id).Str("job_id", jobID).Str("reason", reason).Msg("scoring failed")
			return
		case remote.StateQueued:
			m.setInProgress(id, StatusQueued)
		case remote.StateProcessing:
			m.setInProgress(id, StatusProcessing)
		default:
			log.Warn().Str("task_id", id).Str("state", string(status.State)).Msg("unknown job state, keeping previous status")
		}

		delay = m.pollInterval
	}
}

// finishCancelledPoll distinguishes the poll deadline from an explicit
// cancellation: hitting the maximum wait errors the task out, a removal or
// shutdown leaves it alone.
func (m *Manager) finishCancelledPoll(ctx context.Context, id string) {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		m.failTask(id, "gave up waiting for result after "+m.pollMaxWait.String())
	}
}

// setInProgress mirrors the engine-reported in-progress state onto the task.
func (m *Manager) setInProgress(id string, next Status) {
	changed := false
	m.store.Update(id, func(t *Task) {
		if t.Status.Terminal() || t.Status == next {
			return
		}
		t.Status = next
		changed = true
	})
	if changed {
		m.persist(id)
	}
}

// failTask moves a task into its terminal error state, once. Any spooled
// payload is discarded.
func (m *Manager) failTask(id, msg string) {
	var payloadPath string
	m.store.Update(id, func(t *Task) {
		if t.Status.Terminal() {
			return
		}
		payloadPath = t.PayloadPath
		t.Status = StatusError
		t.ErrorMessage = msg
		t.PayloadPath = ""
	})
	m.records.DiscardPayload(payloadPath)
	m.persist(id)
}
