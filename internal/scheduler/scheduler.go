// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/isol178/agent-omoikane/internal/config"
	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
	"github.com/robfig/cron/v3"
)

// Scheduler re-runs queries on cron schedules. All watches share one tool
// session, so at most one query runs at any time: a watch that fires while
// another query is in flight is skipped, not queued.
type Scheduler struct {
	cron     *cron.Cron
	watches  map[string]*model.Watch
	entryIDs map[string]cron.EntryID
	mu       sync.RWMutex
	execMu   sync.Mutex
	executor model.Executor
	config   *config.AgentConfig
	logger   *logging.Logger
	ctx      context.Context
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.AgentConfig, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		),
		cron.WithLogger(cl),
	)

	return &Scheduler{
		cron:     c,
		watches:  make(map[string]*model.Watch),
		entryIDs: make(map[string]cron.EntryID),
		config:   cfg,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start begins the scheduler. Running queries are cancelled with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping scheduler: %v", err)
		}
	}()
}

// Stop halts the scheduler and waits for a running query to return.
func (s *Scheduler) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

// AddWatch adds a new watch to the scheduler
func (s *Scheduler) AddWatch(w *model.Watch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" || w.Query == "" {
		return errors.InvalidInput("watch needs an ID and a query")
	}
	if _, exists := s.watches[w.ID]; exists {
		return errors.AlreadyExists("watch", w.ID)
	}

	s.watches[w.ID] = w

	if w.Enabled {
		if err := s.scheduleWatch(w); err != nil {
			w.Status = model.StatusFailed
			return err
		}
	}
	return nil
}

// RemoveWatch removes a watch from the scheduler
func (s *Scheduler) RemoveWatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watches[id]; !exists {
		return errors.NotFound("watch", id)
	}
	if entryID, exists := s.entryIDs[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entryIDs, id)
	}
	delete(s.watches, id)
	return nil
}

// EnableWatch enables a disabled watch
func (s *Scheduler) EnableWatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.watches[id]
	if !exists {
		return errors.NotFound("watch", id)
	}
	if w.Enabled {
		return nil
	}

	w.Enabled = true
	w.UpdatedAt = time.Now()
	if err := s.scheduleWatch(w); err != nil {
		w.Status = model.StatusFailed
		return err
	}
	return nil
}

// DisableWatch disables a watch without forgetting it
func (s *Scheduler) DisableWatch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.watches[id]
	if !exists {
		return errors.NotFound("watch", id)
	}
	if !w.Enabled {
		return nil
	}

	if entryID, exists := s.entryIDs[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entryIDs, id)
	}
	w.Enabled = false
	w.Status = model.StatusDisabled
	w.UpdatedAt = time.Now()
	return nil
}

// GetWatch returns a snapshot of a watch
func (s *Scheduler) GetWatch(id string) (model.Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.watches[id]
	if !exists {
		return model.Watch{}, errors.NotFound("watch", id)
	}
	return *w, nil
}

// ListWatches returns snapshots of all watches ordered by ID
func (s *Scheduler) ListWatches() []model.Watch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Watch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetExecutor sets the executor used to run queries
func (s *Scheduler) SetExecutor(executor model.Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
}

// NewWatch creates a new enabled watch with default values
func NewWatch(id, schedule, query string) *model.Watch {
	now := time.Now()
	return &model.Watch{
		ID:        id,
		Schedule:  schedule,
		Query:     query,
		Enabled:   true,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// scheduleWatch adds a watch to cron. Callers hold s.mu.
func (s *Scheduler) scheduleWatch(w *model.Watch) error {
	if s.executor == nil {
		return fmt.Errorf("cannot schedule watch: no executor set")
	}

	id := w.ID
	jobFunc := func() {
		s.mu.Lock()
		w, exists := s.watches[id]
		if !exists {
			s.mu.Unlock()
			return
		}
		ctx, executor, timeout := s.ctx, s.executor, s.config.QueryTimeout
		s.mu.Unlock()

		if !s.execMu.TryLock() {
			s.logger.Infof("Watch %s skipped: another query is running", id)
			s.finish(w, model.StatusSkipped, nil)
			return
		}
		defer s.execMu.Unlock()

		s.mu.Lock()
		w.LastRun = time.Now()
		w.Status = model.StatusRunning
		snapshot := *w
		s.mu.Unlock()

		err := executor.Execute(ctx, &snapshot, timeout)
		if err != nil {
			s.finish(w, model.StatusFailed, err)
			return
		}
		s.finish(w, model.StatusCompleted, nil)
	}

	entryID, err := s.cron.AddFunc(w.Schedule, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to schedule watch: %w", err)
	}

	s.entryIDs[w.ID] = entryID
	s.updateNextRunTime(w)
	return nil
}

func (s *Scheduler) finish(w *model.Watch, status model.WatchStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Status = status
	w.LastError = ""
	if err != nil {
		w.LastError = err.Error()
	}
	w.UpdatedAt = time.Now()
	s.updateNextRunTime(w)
}

// updateNextRunTime updates the watch's next run time from its cron entry
func (s *Scheduler) updateNextRunTime(w *model.Watch) {
	if entryID, exists := s.entryIDs[w.ID]; exists {
		w.NextRun = s.cron.Entry(entryID).Next
	}
}

// cronLogger routes cron's own log lines through the client logger.
type cronLogger struct {
	logger *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
