package task

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const remoteDeleteTimeout = 10 * time.Second

// Incoming is one user-submitted file: proposed display name plus raw bytes.
type Incoming struct {
	Name    string
	Payload io.Reader
}

// RunConfig is the configuration snapshot a batch run operates under. It is
// captured once when the run starts; later settings changes do not apply to
// an active run.
type RunConfig struct {
	Limit     int
	Reference string
}

// Manager owns the queue and drives submissions against the remote engine:
// name resolution on append, bounded-concurrency dispatch, detached status
// polling, removal with best-effort remote deletion, and persistence of
// queue records across restarts.
type Manager struct {
	store   *Store
	records RecordStore
	engine  Engine
	mode    string

	pollInitialDelay time.Duration
	pollInterval     time.Duration
	pollMaxWait      time.Duration

	runConfig func() RunConfig
	trigger   *Trigger

	running atomic.Bool
	pollsWG sync.WaitGroup

	mu           sync.Mutex
	baseCtx      context.Context
	cancels      map[string]context.CancelFunc
	historyStems map[string]struct{}
}

// NewManager creates a manager with the provided configuration. RunConfig
// may be nil, in which case auto-runs use a limit of 1 and no reference.
func NewManager(opts Options) *Manager {
	if opts.PollInitialDelay <= 0 {
		opts.PollInitialDelay = defaultPollInitialDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollMaxWait <= 0 {
		opts.PollMaxWait = defaultPollMaxWait
	}
	if opts.AutoRunDelay <= 0 {
		opts.AutoRunDelay = defaultAutoRunDelay
	}
	if opts.EngineMode == "" {
		opts.EngineMode = defaultEngineMode
	}

	m := &Manager{
		store:            NewStore(),
		records:          NewFileRecordStore(opts.DataDir),
		engine:           opts.Engine,
		mode:             opts.EngineMode,
		pollInitialDelay: opts.PollInitialDelay,
		pollInterval:     opts.PollInterval,
		pollMaxWait:      opts.PollMaxWait,
		baseCtx:          context.Background(),
		cancels:          make(map[string]context.CancelFunc),
		historyStems:     make(map[string]struct{}),
	}
	m.runConfig = func() RunConfig { return RunConfig{Limit: 1} }
	m.trigger = NewTrigger(opts.AutoRunDelay, m.runAuto)
	return m
}

// SetRunConfig installs the provider consulted at the start of each
// auto-triggered run, typically backed by the settings store.
func (m *Manager) SetRunConfig(provider func() RunConfig) {
	if provider != nil {
		m.runConfig = provider
	}
}

// SetBaseContext sets the context that bounds all detached poll loops.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// UseRecordStore allows tests to inject an alternative persistence layer.
// Intended for test setup only, before any tasks exist.
func (m *Manager) UseRecordStore(rs RecordStore) {
	m.records = rs
}

// Add resolves a unique name for every incoming file, spools its payload,
// and appends an idle task per file. A single debounced auto-run is armed
// for the whole batch.
func (m *Manager) Add(incoming []Incoming) ([]Task, error) {
	if len(incoming) == 0 {
		return nil, ErrNoFiles
	}

	queueNames := m.store.Names()
	historyStems := m.historySnapshot()

	created := make([]Task, 0, len(incoming))
	for _, in := range incoming {
		proposed := filepath.Base(strings.TrimSpace(in.Name))
		if proposed == "" || proposed == "." || proposed == string(filepath.Separator) {
			return created, fmt.Errorf("invalid file name %q", in.Name)
		}

		name := ResolveName(proposed, queueNames, historyStems)
		queueNames[name] = struct{}{}

		id := uuid.NewString()
		payloadPath, err := m.records.SpoolPayload(id, filepath.Ext(name), in.Payload)
		if err != nil {
			return created, fmt.Errorf("spool %q: %w", name, err)
		}

		newTask := &Task{
			ID:          id,
			Name:        name,
			PayloadPath: payloadPath,
			Status:      StatusIdle,
			CreatedAt:   time.Now(),
		}
		m.store.Append(newTask)
		m.persist(id)
		created = append(created, *newTask)
		log.Info().Str("task_id", id).Str("name", name).Msg("task queued")
	}

	m.trigger.Notify()
	return created, nil
}

// GetTask returns a copy of the task with the given ID.
func (m *Manager) GetTask(id string) (Task, bool) {
	return m.store.Get(id)
}

// Snapshot returns copies of all tasks in insertion order.
func (m *Manager) Snapshot() []Task {
	return m.store.Snapshot()
}

// Remove deletes a task optimistically: the record disappears from the
// queue immediately, the poll loop (if any) is cancelled, and a best-effort
// deletion is issued against the engine when a job identifier exists.
// Remote failures are logged only and never revert the removal.
func (m *Manager) Remove(id string) (Task, error) {
	m.cancelPoll(id)

	removed, ok := m.store.Remove(id)
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if err := m.records.Delete(id); err != nil {
		log.Warn().Str("task_id", id).Err(err).Msg("delete queue record failed")
	}

	if removed.JobID != "" {
		go func(jobID string) {
			ctx, cancel := context.WithTimeout(context.Background(), remoteDeleteTimeout)
			defer cancel()
			if err := m.engine.Delete(ctx, jobID); err != nil {
				log.Warn().Str("job_id", jobID).Err(err).Msg("remote delete failed")
			}
		}(removed.JobID)
	}

	log.Info().Str("task_id", id).Str("name", removed.Name).Msg("task removed")
	return removed, nil
}

// Clear empties the queue. Job identifiers present at clear time are sent to
// the engine in a single batch-deletion request; failures are logged only.
func (m *Manager) Clear() int {
	m.cancelAllPolls()

	removed := m.store.Clear()
	jobIDs := make([]string, 0, len(removed))
	for _, t := range removed {
		if err := m.records.Delete(t.ID); err != nil {
			log.Warn().Str("task_id", t.ID).Err(err).Msg("delete queue record failed")
		}
		if t.JobID != "" {
			jobIDs = append(jobIDs, t.JobID)
		}
	}

	if len(jobIDs) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), remoteDeleteTimeout)
			defer cancel()
			if err := m.engine.BatchDelete(ctx, jobIDs); err != nil {
				log.Warn().Int("jobs", len(jobIDs)).Err(err).Msg("remote batch delete failed")
			}
		}()
	}

	log.Info().Int("removed", len(removed)).Msg("queue cleared")
	return len(removed)
}

// RunNow launches a batch run in the background under the current run
// configuration, as if the debounce had just fired.
func (m *Manager) RunNow() {
	go m.runAuto()
}

// WaitAll blocks until all detached poll loops finish or the context is
// done. Returns true if everything finished.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.pollsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop disarms the auto-run trigger. Poll loops stop via the base context.
func (m *Manager) Stop() {
	m.trigger.Stop()
}

// persist writes the task's current state to disk, best-effort.
func (m *Manager) persist(id string) {
	t, ok := m.store.Get(id)
	if !ok {
		return
	}
	if err := m.records.Save(&t); err != nil {
		log.Warn().Str("task_id", id).Err(err).Msg("persist task failed")
	}
}

func (m *Manager) baseContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseCtx
}

func (m *Manager) historySnapshot() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.historyStems))
	for s := range m.historyStems {
		out[s] = struct{}{}
	}
	return out
}

func (m *Manager) rememberStem(stem string) {
	if stem == "" {
		return
	}
	m.mu.Lock()
	m.historyStems[stem] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) setCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) clearCancel(id string) {
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()
}

func (m *Manager) cancelPoll(id string) {
	m.mu.Lock()
	cancel := m.cancels[id]
	delete(m.cancels, id)
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) cancelAllPolls() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = make(map[string]context.CancelFunc)
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
