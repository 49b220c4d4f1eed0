package alertsync

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func alertAt(id string, minutes int, author model.Identity) model.Alert {
	return model.Alert{
		ID:        id,
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
		AuthorID:  author,
		BloodType: "O+",
		Location:  "General Hospital",
		Message:   "Needed",
	}
}

func ids(alerts []model.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

// mockSessions implements gateway.Sessions
type mockSessions struct {
	identity model.Identity
}

func (m *mockSessions) CurrentIdentity(ctx context.Context) (model.Identity, error) {
	if m.identity == "" {
		return "", gateway.ErrAuthenticationRequired
	}
	return m.identity, nil
}

// mockStore implements gateway.AlertStore. When gate is set, ListAlerts
// blocks until it is closed, ignoring ctx.
type mockStore struct {
	mu        sync.Mutex
	alerts    []model.Alert
	listErr   error
	gate      chan struct{}
	created   []model.AlertFields
	createErr error
	deleted   []string
	deleteErr error
}

func (m *mockStore) ListAlerts(ctx context.Context) ([]model.Alert, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.Alert(nil), m.alerts...), nil
}

func (m *mockStore) CreateAlert(ctx context.Context, author model.Identity, fields model.AlertFields) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return model.Alert{}, m.createErr
	}
	m.created = append(m.created, fields)
	return model.Alert{
		ID:        fmt.Sprintf("new-%d", len(m.created)),
		CreatedAt: time.Now(),
		AuthorID:  author,
		BloodType: fields.BloodType,
		Location:  fields.Location,
		Message:   fields.Message,
	}, nil
}

func (m *mockStore) DeleteAlert(ctx context.Context, id string, acting model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// mockSubscription counts Close calls
type mockSubscription struct {
	mu     sync.Mutex
	closes int
}

func (s *mockSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *mockSubscription) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// mockFeed implements gateway.AlertFeed and hands the registered handlers to the test
type mockFeed struct {
	mu         sync.Mutex
	handlers   gateway.AlertHandlers
	sub        *mockSubscription
	err        error
	subscribed chan struct{}
	release    chan struct{}
}

func newMockFeed() *mockFeed {
	return &mockFeed{sub: &mockSubscription{}, subscribed: make(chan struct{}, 8)}
}

func (f *mockFeed) SubscribeToAlertChanges(ctx context.Context, h gateway.AlertHandlers) (gateway.Subscription, error) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

func (f *mockFeed) insert(a model.Alert) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.Dispatch(gateway.InsertEvent(a))
}

func (f *mockFeed) delete(id string) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.Dispatch(gateway.DeleteEvent(id))
}

func (f *mockFeed) waitSubscribed(t *testing.T) {
	t.Helper()
	select {
	case <-f.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription")
	}
}

func activateAsync(s *Synchronizer) chan error {
	done := make(chan error, 1)
	go func() { done <- s.Activate(context.Background()) }()
	return done
}

func waitActivated(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Activate")
		return nil
	}
}

func TestActivate_SeedsNewestFirst(t *testing.T) {
	store := &mockStore{alerts: []model.Alert{
		alertAt("a", 1, "u-1"),
		alertAt("c", 3, "u-2"),
		alertAt("b", 2, "u-1"),
	}}
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	assert.Equal(t, Idle, s.State())
	require.NoError(t, s.Activate(context.Background()))

	assert.Equal(t, Live, s.State())
	assert.Equal(t, []string{"c", "b", "a"}, ids(s.Snapshot()))
	assert.NoError(t, s.Err())
}

func TestActivate_InsertBeforeFetchResolves(t *testing.T) {
	store := &mockStore{alerts: []model.Alert{alertAt("5", 1, "u-1")}, gate: make(chan struct{})}
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	done := activateAsync(s)
	feed.waitSubscribed(t)

	feed.insert(alertAt("7", 2, "u-2"))
	assert.Equal(t, Loading, s.State())

	close(store.gate)
	require.NoError(t, waitActivated(t, done))

	assert.Equal(t, Live, s.State())
	assert.Equal(t, []string{"7", "5"}, ids(s.Snapshot()))
}

func TestActivate_FetchOverlappingFeedHasNoDuplicates(t *testing.T) {
	store := &mockStore{
		alerts: []model.Alert{alertAt("5", 1, "u-1"), alertAt("7", 2, "u-2")},
		gate:   make(chan struct{}),
	}
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	done := activateAsync(s)
	feed.waitSubscribed(t)
	feed.insert(alertAt("7", 2, "u-2"))
	close(store.gate)
	require.NoError(t, waitActivated(t, done))

	feed.insert(alertAt("5", 1, "u-1"))

	assert.Equal(t, []string{"7", "5"}, ids(s.Snapshot()))
}

func TestActivate_DeleteBeforeFetchResolves(t *testing.T) {
	store := &mockStore{
		alerts: []model.Alert{alertAt("5", 1, "u-1"), alertAt("6", 2, "u-1")},
		gate:   make(chan struct{}),
	}
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	done := activateAsync(s)
	feed.waitSubscribed(t)
	feed.delete("5")
	close(store.gate)
	require.NoError(t, waitActivated(t, done))

	assert.Equal(t, []string{"6"}, ids(s.Snapshot()))
}

func TestLive_OutOfOrderEventsStaySorted(t *testing.T) {
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, &mockStore{}, feed, zap.NewNop())
	require.NoError(t, s.Activate(context.Background()))

	feed.insert(alertAt("t1", 1, "u-1"))
	feed.insert(alertAt("t3", 3, "u-1"))
	feed.insert(alertAt("t2", 2, "u-1"))
	feed.delete("t3")
	feed.delete("missing")

	assert.Equal(t, []string{"t2", "t1"}, ids(s.Snapshot()))
}

func TestLive_RandomEventSequencesStaySortedAndUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		var fetched []model.Alert
		n := rng.Intn(5)
		for i := 0; i < n; i++ {
			fetched = append(fetched, alertAt(fmt.Sprintf("id-%d", rng.Intn(10)), rng.Intn(100), "u-1"))
		}
		store := &mockStore{alerts: dedupe(fetched), gate: make(chan struct{})}
		feed := newMockFeed()
		s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

		done := activateAsync(s)
		feed.waitSubscribed(t)

		released := false
		for i := 0; i < 30; i++ {
			if !released && rng.Intn(10) == 0 {
				close(store.gate)
				require.NoError(t, waitActivated(t, done))
				released = true
			}
			id := fmt.Sprintf("id-%d", rng.Intn(10))
			if rng.Intn(3) == 0 {
				feed.delete(id)
			} else {
				feed.insert(alertAt(id, rng.Intn(100), "u-1"))
			}
		}
		if !released {
			close(store.gate)
			require.NoError(t, waitActivated(t, done))
		}

		snap := s.Snapshot()
		seen := map[string]bool{}
		for i, a := range snap {
			assert.False(t, seen[a.ID], "duplicate id %s in round %d", a.ID, round)
			seen[a.ID] = true
			if i > 0 {
				assert.False(t, snap[i-1].CreatedAt.Before(a.CreatedAt), "cache out of order in round %d", round)
			}
		}
	}
}

func dedupe(alerts []model.Alert) []model.Alert {
	seen := map[string]bool{}
	var out []model.Alert
	for _, a := range alerts {
		if !seen[a.ID] {
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out
}

func TestDeactivate_ReleasesSubscriptionOnce(t *testing.T) {
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, &mockStore{}, feed, zap.NewNop())
	require.NoError(t, s.Activate(context.Background()))

	s.Deactivate()
	s.Deactivate()

	assert.Equal(t, Closed, s.State())
	assert.Equal(t, 1, feed.sub.closeCount())

	feed.insert(alertAt("late", 1, "u-1"))
	assert.Empty(t, s.Snapshot())
}

func TestDeactivate_WhileFetchInFlight(t *testing.T) {
	store := &mockStore{alerts: []model.Alert{alertAt("5", 1, "u-1")}, gate: make(chan struct{})}
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	done := activateAsync(s)
	feed.waitSubscribed(t)

	s.Deactivate()
	close(store.gate)

	assert.NoError(t, waitActivated(t, done))
	assert.Equal(t, Closed, s.State())
	assert.Empty(t, s.Snapshot())
	assert.NoError(t, s.Err())
}

func TestDeactivate_SubscriptionOpenedAfterCloseIsReleased(t *testing.T) {
	feed := newMockFeed()
	feed.release = make(chan struct{})
	s := New(&mockSessions{identity: "u-1"}, &mockStore{}, feed, zap.NewNop())

	done := activateAsync(s)
	feed.waitSubscribed(t)

	s.Deactivate()
	close(feed.release)

	assert.NoError(t, waitActivated(t, done))
	assert.Equal(t, 1, feed.sub.closeCount())

	s.Deactivate()
	assert.Equal(t, 1, feed.sub.closeCount())
}

func TestActivate_FetchFailureIsNonFatal(t *testing.T) {
	store := &mockStore{listErr: fmt.Errorf("%w: connection refused", gateway.ErrTransient)}
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	err := s.Activate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrTransient)

	assert.Equal(t, Live, s.State())
	assert.Empty(t, s.Snapshot())
	assert.ErrorIs(t, s.Err(), gateway.ErrTransient)

	// Still interactive: feed events keep flowing
	feed.insert(alertAt("x", 1, "u-2"))
	assert.Equal(t, []string{"x"}, ids(s.Snapshot()))

	// Manual retry by reactivating
	s.Deactivate()
	store.mu.Lock()
	store.listErr = nil
	store.alerts = []model.Alert{alertAt("y", 2, "u-2")}
	store.mu.Unlock()

	require.NoError(t, s.Activate(context.Background()))
	assert.Equal(t, []string{"y"}, ids(s.Snapshot()))
	assert.NoError(t, s.Err())
}

func TestActivate_SubscribeFailureIsNonFatal(t *testing.T) {
	store := &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-1")}}
	feed := newMockFeed()
	feed.err = errors.New("feed unavailable")
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	err := s.Activate(context.Background())
	require.Error(t, err)

	assert.Equal(t, Live, s.State())
	assert.Equal(t, []string{"a"}, ids(s.Snapshot()))
	assert.Error(t, s.Err())

	s.Deactivate()
	assert.Equal(t, 0, feed.sub.closeCount())
}

func TestFeedErrorIsRecorded(t *testing.T) {
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, &mockStore{}, feed, zap.NewNop())
	require.NoError(t, s.Activate(context.Background()))

	feed.mu.Lock()
	h := feed.handlers
	feed.mu.Unlock()
	h.Fail(errors.New("listener connection lost"))

	assert.Error(t, s.Err())
	assert.Equal(t, Live, s.State())
}

func TestFeedErrorNotifiesListener(t *testing.T) {
	feed := newMockFeed()
	store := &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-2")}}
	s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())

	var mu sync.Mutex
	var calls int
	var last []model.Alert
	s.OnChange(func(alerts []model.Alert) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = alerts
	})
	require.NoError(t, s.Activate(context.Background()))

	mu.Lock()
	before := calls
	mu.Unlock()

	feed.mu.Lock()
	h := feed.handlers
	feed.mu.Unlock()
	h.Fail(errors.New("listener connection lost"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before+1, calls)
	assert.Equal(t, []string{"a"}, ids(last), "the cache is kept")
	assert.ErrorContains(t, s.Err(), "listener connection lost")
	assert.Equal(t, Live, s.State())
}

func TestSubmit(t *testing.T) {
	valid := model.AlertFields{BloodType: "B-", Location: " Ward 3 ", Message: "Two units"}

	t.Run("missing fields", func(t *testing.T) {
		store := &mockStore{}
		s := New(&mockSessions{identity: "u-1"}, store, newMockFeed(), zap.NewNop())

		_, err := s.Submit(context.Background(), model.AlertFields{BloodType: "A+", Location: "  "})
		require.Error(t, err)
		assert.ErrorIs(t, err, gateway.ErrInvalidInput)
		assert.Contains(t, err.Error(), "location, message")
		assert.Empty(t, store.created)
	})

	t.Run("no session", func(t *testing.T) {
		store := &mockStore{}
		s := New(&mockSessions{}, store, newMockFeed(), zap.NewNop())

		_, err := s.Submit(context.Background(), valid)
		assert.ErrorIs(t, err, gateway.ErrAuthenticationRequired)
		assert.Empty(t, store.created)
	})

	t.Run("no optimistic insert", func(t *testing.T) {
		store := &mockStore{}
		feed := newMockFeed()
		s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())
		require.NoError(t, s.Activate(context.Background()))

		created, err := s.Submit(context.Background(), valid)
		require.NoError(t, err)
		assert.Equal(t, model.Identity("u-1"), created.AuthorID)
		assert.Equal(t, "Ward 3", store.created[0].Location)
		assert.Empty(t, s.Snapshot())

		feed.insert(created)
		assert.Equal(t, []string{created.ID}, ids(s.Snapshot()))
	})

	t.Run("backend failure leaves cache unchanged", func(t *testing.T) {
		store := &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-1")}}
		s := New(&mockSessions{identity: "u-1"}, store, newMockFeed(), zap.NewNop())
		require.NoError(t, s.Activate(context.Background()))
		store.createErr = gateway.ErrTransient

		_, err := s.Submit(context.Background(), valid)
		assert.ErrorIs(t, err, gateway.ErrTransient)
		assert.Equal(t, []string{"a"}, ids(s.Snapshot()))
	})
}

func TestDelete(t *testing.T) {
	t.Run("non-author is refused locally", func(t *testing.T) {
		store := &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-2")}}
		s := New(&mockSessions{identity: "u-1"}, store, newMockFeed(), zap.NewNop())
		require.NoError(t, s.Activate(context.Background()))

		assert.False(t, s.CanDelete(context.Background(), "a"))
		err := s.Delete(context.Background(), "a")
		assert.ErrorIs(t, err, gateway.ErrPermissionDenied)
		assert.Empty(t, store.deleted)
		assert.Equal(t, []string{"a"}, ids(s.Snapshot()))
	})

	t.Run("backend refusal leaves cache unchanged", func(t *testing.T) {
		store := &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-1")}}
		s := New(&mockSessions{identity: "u-1"}, store, newMockFeed(), zap.NewNop())
		require.NoError(t, s.Activate(context.Background()))
		store.deleteErr = gateway.ErrPermissionDenied

		err := s.Delete(context.Background(), "a")
		assert.ErrorIs(t, err, gateway.ErrPermissionDenied)
		assert.Equal(t, []string{"a"}, ids(s.Snapshot()))
	})

	t.Run("author delete removes immediately", func(t *testing.T) {
		store := &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-1"), alertAt("b", 2, "u-2")}}
		feed := newMockFeed()
		s := New(&mockSessions{identity: "u-1"}, store, feed, zap.NewNop())
		require.NoError(t, s.Activate(context.Background()))

		assert.True(t, s.CanDelete(context.Background(), "a"))
		require.NoError(t, s.Delete(context.Background(), "a"))
		assert.Equal(t, []string{"a"}, store.deleted)
		assert.Equal(t, []string{"b"}, ids(s.Snapshot()))

		feed.delete("a")
		assert.Equal(t, []string{"b"}, ids(s.Snapshot()))
	})

	t.Run("no session", func(t *testing.T) {
		store := &mockStore{}
		s := New(&mockSessions{}, store, newMockFeed(), zap.NewNop())

		assert.ErrorIs(t, s.Delete(context.Background(), "a"), gateway.ErrAuthenticationRequired)
		assert.Empty(t, store.deleted)
	})
}

func TestOnChange_DeliversSnapshots(t *testing.T) {
	feed := newMockFeed()
	s := New(&mockSessions{identity: "u-1"}, &mockStore{alerts: []model.Alert{alertAt("a", 1, "u-1")}}, feed, zap.NewNop())

	var mu sync.Mutex
	var seen [][]string
	s.OnChange(func(alerts []model.Alert) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ids(alerts))
	})

	require.NoError(t, s.Activate(context.Background()))
	feed.insert(alertAt("b", 2, "u-1"))
	feed.delete("a")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"a"}, {"b", "a"}, {"b"}}, seen)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "live", Live.String())
	assert.Equal(t, "closed", Closed.String())
}
