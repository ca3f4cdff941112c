package pipeline

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
	"fleet-monitor/locintel/internal/geofence"
	"fleet-monitor/locintel/internal/hub"
	"fleet-monitor/locintel/internal/notify"
	"fleet-monitor/locintel/internal/store"
)

func seed(t *testing.T, s *store.MemoryStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateOwner(ctx, &domain.Owner{ID: "parent"}))
	require.NoError(t, s.CreateEntity(ctx, &domain.TrackedEntity{ID: "kid", OwnerID: "parent", DisplayName: "Deniz"}))
}

func TestIngestScenario(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zaptest.NewLogger(t).Sugar()

	mem := store.NewMemoryStore()
	seed(t, mem)
	h := hub.New(32, logger)
	live := h.Subscribe("parent")

	svc := geofence.NewService(mem, logger)
	// ~100 m x 100 m around (41.0, 29.0).
	zone, err := svc.CreateZone(ctx, "parent", "kid", "Home", orb.Ring{
		{28.9994, 40.99955}, {29.0006, 40.99955}, {29.0006, 41.00045}, {28.9994, 41.00045},
	})
	require.NoError(t, err)

	d := NewDispatcher(16, 0)
	eval := &doneCounter{checker: geofence.NewEvaluator(mem, h, notify.Noop{}, geofence.DefaultCooldown, logger)}
	go NewGeofenceWorker(d.GeofenceChan, eval, logger).Run(ctx)

	in := NewIngestor(mem, h, d, logger)
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in.now = func() time.Time { return base.Add(time.Minute) }

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i*20) * time.Second)
		_, err := in.Ingest(ctx, "kid", 41.0+float64(i)*0.0001, 29.0, &ts)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return eval.done.Load() == 3 }, 2*time.Second, 10*time.Millisecond)

	alerts, err := mem.ListGeofenceAlerts(ctx, "parent", false)
	require.NoError(t, err)
	assert.Empty(t, alerts, "inside samples raise no alert")
	for i := 0; i < 3; i++ {
		ev := nextEvent(t, live)
		assert.Equal(t, domain.EventLocationUpdate, ev.Name)
	}

	// 500 m north of the zone.
	ts := base.Add(time.Minute)
	_, err = in.Ingest(ctx, "kid", 41.00045+0.0045, 29.0, &ts)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return eval.done.Load() == 4 }, 2*time.Second, 10*time.Millisecond)

	alerts, err = mem.ListGeofenceAlerts(ctx, "parent", false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, zone.ID, alerts[0].ZoneID)
	assert.False(t, alerts[0].Read)

	assert.Equal(t, domain.EventLocationUpdate, nextEvent(t, live).Name)
	assert.Equal(t, domain.EventGeofenceBreach, nextEvent(t, live).Name)
	select {
	case ev := <-live.Events():
		t.Fatalf("unexpected event %s", ev.Name)
	default:
	}
}

// doneCounter counts finished checks so tests can wait for the worker.
type doneCounter struct {
	checker BreachChecker
	done    atomic.Int32
}

func (c *doneCounter) Check(ctx context.Context, entity *domain.TrackedEntity, lat, lng float64) (*domain.GeofenceAlert, error) {
	defer c.done.Add(1)
	return c.checker.Check(ctx, entity, lat, lng)
}

func nextEvent(t *testing.T, ch *hub.Channel) hub.Event {
	t.Helper()
	select {
	case ev := <-ch.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return hub.Event{}
	}
}

func TestIngestValidation(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	mem := store.NewMemoryStore()
	seed(t, mem)
	in := NewIngestor(mem, hub.New(4, logger), NewDispatcher(4, 4), logger)
	ctx := context.Background()

	for _, c := range [][2]float64{{91, 0}, {0, -181}, {math.NaN(), 0}, {0, math.Inf(1)}} {
		_, err := in.Ingest(ctx, "kid", c[0], c[1], nil)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "%v", c)
	}

	_, err := in.Ingest(ctx, "ghost", 41, 29, nil)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestIngestDefaultsToServerTime(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	mem := store.NewMemoryStore()
	seed(t, mem)
	d := NewDispatcher(4, 4)
	in := NewIngestor(mem, hub.New(4, logger), d, logger)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in.now = func() time.Time { return now }

	p, err := in.Ingest(context.Background(), "kid", 41, 29, nil)
	require.NoError(t, err)
	assert.Equal(t, now, p.RecordedAt)
	assert.NotEmpty(t, p.ID)

	assert.Len(t, d.GeofenceChan, 1)
	assert.Len(t, d.StateChan, 1)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, 0)
	d.Dispatch(Task{})
	d.Dispatch(Task{})
	assert.Len(t, d.GeofenceChan, 1)
	assert.Nil(t, d.StateChan)
}

type panicChecker struct{}

func (panicChecker) Check(context.Context, *domain.TrackedEntity, float64, float64) (*domain.GeofenceAlert, error) {
	panic("corrupt geometry")
}

type countingChecker struct {
	mu    sync.Mutex
	calls int
}

func (c *countingChecker) Check(context.Context, *domain.TrackedEntity, float64, float64) (*domain.GeofenceAlert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, errors.New("store down")
}

func TestGeofenceWorkerSurvivesFailures(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	ch := make(chan Task, 2)
	ch <- Task{}
	close(ch)
	NewGeofenceWorker(ch, panicChecker{}, logger).Run(context.Background())

	counting := &countingChecker{}
	ch = make(chan Task, 2)
	ch <- Task{}
	ch <- Task{}
	close(ch)
	NewGeofenceWorker(ch, counting, logger).Run(context.Background())
	assert.Equal(t, 2, counting.calls)
}

type recordingSink struct {
	mu     sync.Mutex
	states []domain.LiveState
}

func (r *recordingSink) PipelineStateUpdate(_ context.Context, s *domain.LiveState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, *s)
	return nil
}

func TestStateWriterFlushesOnClose(t *testing.T) {
	sink := &recordingSink{}
	ch := make(chan Task, 3)
	for i := 0; i < 3; i++ {
		ch <- Task{
			Entity: domain.TrackedEntity{ID: "kid", OwnerID: "parent"},
			Sample: domain.PositionSample{Latitude: float64(i), Longitude: 29},
		}
	}
	close(ch)

	NewStateWriter(ch, sink, zaptest.NewLogger(t).Sugar()).Run(context.Background())

	require.Len(t, sink.states, 3)
	assert.Equal(t, "parent", sink.states[2].OwnerID)
	assert.Equal(t, 2.0, sink.states[2].Latitude)
}
