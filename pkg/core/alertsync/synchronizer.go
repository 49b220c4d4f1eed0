// Package alertsync keeps a local, newest-first view of the alert set
// consistent with the backend for the lifetime of one alert screen.
package alertsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// State is the lifecycle position of a Synchronizer
type State int

const (
	Idle State = iota
	Loading
	Live
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener is called with a fresh copy of the cache after every change
type Listener func(alerts []model.Alert)

// Synchronizer owns one screen's alert cache and its change-feed subscription.
//
// Every asynchronous result is tagged with the generation it was started in.
// Deactivate bumps the generation, so anything that completes afterwards is
// dropped instead of touching the cache.
type Synchronizer struct {
	sessions gateway.Sessions
	store    gateway.AlertStore
	feed     gateway.AlertFeed
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	alerts     []model.Alert
	tombstones map[string]struct{} // deletes seen while Loading
	sub        gateway.Subscription
	cancel     context.CancelFunc
	lastErr    error
	version    uint64

	notifyMu  sync.Mutex
	delivered uint64
	listener  Listener
}

// New creates an idle synchronizer
func New(sessions gateway.Sessions, store gateway.AlertStore, feed gateway.AlertFeed, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		sessions: sessions,
		store:    store,
		feed:     feed,
		logger:   logger,
	}
}

// OnChange registers the listener notified after every cache change
func (s *Synchronizer) OnChange(l Listener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listener = l
}

// Activate opens the change-feed subscription and runs the initial fetch
// concurrently, and returns once both have settled. Fetch and subscribe
// failures are not fatal: the synchronizer still goes Live with whatever it
// has and the failure is returned and kept in Err. Calling Activate on a
// closed synchronizer starts it again with an empty cache.
func (s *Synchronizer) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Loading || s.state == Live {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	gen := s.generation
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = Loading
	s.alerts = nil
	s.tombstones = make(map[string]struct{})
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Debug("Activating alert synchronizer", zap.Uint64("generation", gen))

	var g errgroup.Group

	g.Go(func() error {
		sub, err := s.feed.SubscribeToAlertChanges(runCtx, gateway.AlertHandlers{
			OnInsert: func(a model.Alert) { s.applyInsert(gen, a) },
			OnDelete: func(id string) { s.applyDelete(gen, id) },
			OnError:  func(err error) { s.recordError(gen, fmt.Errorf("alert feed failed: %w", err)) },
		})
		if err != nil {
			err = fmt.Errorf("failed to subscribe to alert changes: %w", err)
			s.recordError(gen, err)
			return err
		}
		s.adoptSubscription(gen, sub)
		return nil
	})

	g.Go(func() error {
		alerts, err := s.store.ListAlerts(runCtx)
		if err != nil {
			err = fmt.Errorf("failed to fetch alerts: %w", err)
		}
		s.seed(gen, alerts, err)
		return err
	})

	err := g.Wait()

	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		// Deactivated mid-flight; the screen is gone and wants no error.
		return nil
	}
	if err != nil {
		s.logger.Warn("Alert synchronizer is live with errors", zap.Error(err))
	}
	return err
}

// Deactivate releases the subscription and discards every in-flight result.
// It is safe to call more than once.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.state = Closed
	s.tombstones = nil
	sub := s.sub
	s.sub = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			s.logger.Warn("Failed to close alert subscription", zap.Error(err))
		}
	}
	s.logger.Debug("Alert synchronizer closed")
}

// Submit validates fields and asks the backend to create an alert. The cache
// is not touched; the new alert arrives through the change feed.
func (s *Synchronizer) Submit(ctx context.Context, fields model.AlertFields) (model.Alert, error) {
	if missing := fields.Missing(); len(missing) > 0 {
		return model.Alert{}, fmt.Errorf("%w: %s required", gateway.ErrInvalidInput, strings.Join(missing, ", "))
	}

	identity, err := s.sessions.CurrentIdentity(ctx)
	if err != nil {
		return model.Alert{}, fmt.Errorf("failed to resolve session: %w", err)
	}

	alert, err := s.store.CreateAlert(ctx, identity, fields.Trimmed())
	if err != nil {
		return model.Alert{}, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.Info("Alert submitted", zap.String("alert_id", alert.ID), zap.String("blood_type", alert.BloodType))
	return alert, nil
}

// Delete removes an alert authored by the current identity. A cached alert
// by someone else is refused before any backend call; the backend checks
// authorship again. On success the alert leaves the cache immediately.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	identity, err := s.sessions.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve session: %w", err)
	}

	s.mu.Lock()
	gen := s.generation
	if i := s.indexOf(id); i >= 0 && !s.alerts[i].DeletableBy(identity) {
		s.mu.Unlock()
		return fmt.Errorf("%w: only the author may delete alert %s", gateway.ErrPermissionDenied, id)
	}
	s.mu.Unlock()

	if err := s.store.DeleteAlert(ctx, id, identity); err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}

	s.applyDelete(gen, id)
	s.logger.Info("Alert deleted", zap.String("alert_id", id))
	return nil
}

// CanDelete reports whether the current identity may delete the cached alert
func (s *Synchronizer) CanDelete(ctx context.Context, id string) bool {
	identity, err := s.sessions.CurrentIdentity(ctx)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	return i >= 0 && s.alerts[i].DeletableBy(identity)
}

// Snapshot returns a copy of the cache, newest first
func (s *Synchronizer) Snapshot() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.alerts)
}

// State returns the current lifecycle state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the most recent fetch or feed failure of the current activation
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) adoptSubscription(gen uint64, sub gateway.Subscription) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		// Never became ours, so nothing else will close it.
		if err := sub.Close(); err != nil {
			s.logger.Warn("Failed to close stale alert subscription", zap.Error(err))
		}
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

func (s *Synchronizer) seed(gen uint64, fetched []model.Alert, err error) {
	s.mu.Lock()
	if gen != s.generation || s.state != Loading {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.lastErr = err
	} else {
		for _, a := range fetched {
			if _, deleted := s.tombstones[a.ID]; deleted {
				continue
			}
			s.upsert(a)
		}
	}
	s.tombstones = nil
	s.state = Live
	snap, version := s.changed()
	s.mu.Unlock()

	s.notify(snap, version)
}

func (s *Synchronizer) applyInsert(gen uint64, a model.Alert) {
	s.mu.Lock()
	if !s.accepting(gen) {
		s.mu.Unlock()
		return
	}
	if _, deleted := s.tombstones[a.ID]; deleted {
		s.mu.Unlock()
		return
	}
	s.upsert(a)
	snap, version := s.changed()
	s.mu.Unlock()

	s.notify(snap, version)
}

func (s *Synchronizer) applyDelete(gen uint64, id string) {
	s.mu.Lock()
	if !s.accepting(gen) {
		s.mu.Unlock()
		return
	}
	if s.state == Loading {
		s.tombstones[id] = struct{}{}
	}
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.alerts = slices.Delete(s.alerts, i, i+1)
	snap, version := s.changed()
	s.mu.Unlock()

	s.notify(snap, version)
}

// recordError keeps err for Err. Once Live, listeners are re-notified with the
// unchanged cache so screens can show the failure; while Loading the pending
// load completion notifies instead.
func (s *Synchronizer) recordError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation || errors.Is(err, context.Canceled) {
		s.mu.Unlock()
		return
	}
	s.lastErr = err
	if s.state != Live {
		s.mu.Unlock()
		return
	}
	snap, version := s.changed()
	s.mu.Unlock()

	s.notify(snap, version)
}

// accepting reports whether results from gen may still change the cache. Callers hold mu.
func (s *Synchronizer) accepting(gen uint64) bool {
	return gen == s.generation && (s.state == Loading || s.state == Live)
}

// upsert replaces or adds a by id and restores newest-first order. Callers hold mu.
func (s *Synchronizer) upsert(a model.Alert) {
	if i := s.indexOf(a.ID); i >= 0 {
		s.alerts[i] = a
	} else {
		s.alerts = append(s.alerts, a)
	}
	sortNewestFirst(s.alerts)
}

func (s *Synchronizer) indexOf(id string) int {
	return slices.IndexFunc(s.alerts, func(a model.Alert) bool { return a.ID == id })
}

// changed bumps the cache version and returns a snapshot to deliver. Callers hold mu.
func (s *Synchronizer) changed() ([]model.Alert, uint64) {
	s.version++
	return slices.Clone(s.alerts), s.version
}

// notify delivers snapshots in version order and drops ones overtaken by a newer delivery
func (s *Synchronizer) notify(snap []model.Alert, version uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.listener == nil || version <= s.delivered {
		return
	}
	s.delivered = version
	s.listener(snap)
}

func sortNewestFirst(alerts []model.Alert) {
	slices.SortStableFunc(alerts, func(a, b model.Alert) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
