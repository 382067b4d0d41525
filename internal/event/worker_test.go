package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/tempo/internal/db"
	"github.com/zulandar/tempo/internal/metrics"
	"github.com/zulandar/tempo/internal/models"
	"go.uber.org/goleak"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine per pool.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err, "open test db")
	require.NoError(t, db.AutoMigrate(gormDB), "migrate test db")
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormDB
}

func seedEvent(t *testing.T, gormDB *gorm.DB, userID string) *models.Event {
	t.Helper()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s := &models.Session{ID: "s-" + userID, UserID: userID, CompletedAt: &at}
	require.NoError(t, SessionCompleted(gormDB, s))
	var ev models.Event
	require.NoError(t, gormDB.Order("id DESC").First(&ev).Error)
	return &ev
}

type recordingHandler struct {
	mu    sync.Mutex
	seen  []uint
	fails map[string]bool
}

func (h *recordingHandler) Handle(_ context.Context, ev models.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev.ID)
	if h.fails[ev.UserID] {
		return errors.New("boom")
	}
	return nil
}

func TestPublish_RequiresCompletedAt(t *testing.T) {
	gormDB := testDB(t)
	err := SessionCompleted(gormDB, &models.Session{ID: "s1"})
	assert.ErrorContains(t, err, "no completed_at")
	err = BlockCompleted(gormDB, "u1", &models.Block{ID: "b1"})
	assert.ErrorContains(t, err, "no completed_at")
}

func TestPendingAndAcknowledge(t *testing.T) {
	gormDB := testDB(t)
	a := seedEvent(t, gormDB, "u1")
	b := seedEvent(t, gormDB, "u2")

	pending, err := Pending(gormDB, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, models.EventSessionCompleted, pending[0].Kind)

	require.NoError(t, Acknowledge(gormDB, a.ID))
	pending, err = Pending(gormDB, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	assert.ErrorContains(t, Acknowledge(gormDB, 9999), "not found")
}

func TestFail_GoesDeadAfterMaxAttempts(t *testing.T) {
	gormDB := testDB(t)
	ev := seedEvent(t, gormDB, "u1")

	dead, err := Fail(gormDB, ev, errors.New("first"), 2)
	require.NoError(t, err)
	assert.False(t, dead)
	dead, err = Fail(gormDB, ev, errors.New("second"), 2)
	require.NoError(t, err)
	assert.True(t, dead)

	var stored models.Event
	require.NoError(t, gormDB.First(&stored, ev.ID).Error)
	assert.Equal(t, 2, stored.Attempts)
	assert.True(t, stored.Dead)
	assert.Equal(t, "second", stored.LastError)

	pending, err := Pending(gormDB, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	gormDB := testDB(t)
	seedEvent(t, gormDB, "ok-1")
	bad := seedEvent(t, gormDB, "bad")
	seedEvent(t, gormDB, "ok-2")

	h := &recordingHandler{fails: map[string]bool{"bad": true}}
	m, _ := metrics.NewTestManagerAndRegistry()
	w := NewWorker(gormDB, h, WorkerOpts{MaxAttempts: 3, Metrics: m})

	acked, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, acked)
	assert.Len(t, h.seen, 3)

	pending, err := Pending(gormDB, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)

	// Redelivered until it goes dead.
	for i := 0; i < 2; i++ {
		_, err = w.ProcessBatch(context.Background())
		require.NoError(t, err)
	}
	pending, err = Pending(gormDB, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	kind := string(models.EventSessionCompleted)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CounterEvents.WithLabelValues(kind, metrics.OutcomeAcked)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CounterEvents.WithLabelValues(kind, metrics.OutcomeRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterEvents.WithLabelValues(kind, metrics.OutcomeDead)))
}

func TestRun_StopsOnCancel(t *testing.T) {
	gormDB := testDB(t)
	seedEvent(t, gormDB, "u1")

	h := &recordingHandler{}
	w := NewWorker(gormDB, h, WorkerOpts{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.seen) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRun_Validation(t *testing.T) {
	assert.ErrorContains(t, (&Worker{}).Run(context.Background()), "db is required")
	assert.ErrorContains(t, (&Worker{db: testDB(t)}).Run(context.Background()), "handler is required")
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(nil, nil, WorkerOpts{})
	assert.Equal(t, defaultPollInterval, w.opts.PollInterval)
	assert.Equal(t, defaultBatchSize, w.opts.BatchSize)
	assert.Equal(t, defaultMaxAttempts, w.opts.MaxAttempts)
}
