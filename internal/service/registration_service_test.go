package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sports-registration/internal/flow"
	"sports-registration/internal/metrics"
	"sports-registration/internal/model"
	"sports-registration/internal/repository"
	"sports-registration/internal/session"
)

type flakyWriter struct {
	mu    sync.Mutex
	fails int
	calls int
	saved []model.Registration
}

func (w *flakyWriter) Create(_ context.Context, reg *model.Registration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fails != 0 {
		if w.fails > 0 {
			w.fails--
		}
		return errors.New("database is locked")
	}
	reg.ID = uint(len(w.saved) + 1)
	w.saved = append(w.saved, *reg)
	return nil
}

type brokenStore struct {
	session.Store
}

func (brokenStore) Get(context.Context, int64) (*model.Session, error) {
	return nil, errors.New("connection reset")
}

// flakyDeletes fails the next fails Delete calls; a negative count fails every call.
type flakyDeletes struct {
	session.Store
	mu    sync.Mutex
	fails int
}

func (f *flakyDeletes) Delete(ctx context.Context, userID int64) error {
	f.mu.Lock()
	if f.fails != 0 {
		if f.fails > 0 {
			f.fails--
		}
		f.mu.Unlock()
		return errors.New("disk I/O error")
	}
	f.mu.Unlock()
	return f.Store.Delete(ctx, userID)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newService(store session.Store, w RegistrationWriter, retries int) (*RegistrationService, *metrics.Metrics) {
	m := metrics.New()
	svc := NewRegistrationService(store, w, m, zerolog.Nop(), retries,
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	return svc, m
}

func feed(t *testing.T, svc *RegistrationService, events ...flow.Event) Reply {
	t.Helper()
	var reply Reply
	for _, ev := range events {
		var err error
		reply, err = svc.Handle(context.Background(), ev)
		require.NoError(t, err, "event %s %q", ev.Kind, ev.Value)
	}
	return reply
}

func degreePath(uid int64, phone string) []flow.Event {
	return []flow.Event{
		flow.Start(uid),
		flow.Text(uid, "Jane Doe"),
		flow.Text(uid, phone),
		flow.Button(uid, flow.CollegeDegree),
		flow.Button(uid, "B.Com."),
		flow.Text(uid, "ROLL123"),
		flow.Button(uid, "Football"),
	}
}

func TestHandle_DegreeCollegeEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := session.NewMemoryStore()
	svc, m := newService(store, repository.NewRegistrationRepository(db), 3)

	reply := feed(t, svc, degreePath(1, "9999999999")...)

	assert.Contains(t, reply.Text, flow.TextComplete)
	assert.Nil(t, reply.Menu)

	var rows []model.Registration
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].UserID)
	assert.Equal(t, "Degree College", rows[0].CollegeType)
	assert.Nil(t, rows[0].Stream)
	assert.Equal(t, "B.Com.", rows[0].Course)
	assert.Equal(t, "Football", rows[0].Sport)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Inputs.WithLabelValues("button", "complete")))
}

func TestHandle_JuniorCollegeEndToEnd(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(session.NewMemoryStore(), repository.NewRegistrationRepository(db), 3)

	feed(t, svc,
		flow.Start(2),
		flow.Text(2, "Ravi"),
		flow.Text(2, "8888888888"),
		flow.Button(2, flow.CollegeJunior),
		flow.Button(2, "Science"),
		flow.Button(2, "FYJC"),
		flow.Text(2, "J-7"),
		flow.Button(2, "Chess"),
	)

	var row model.Registration
	require.NoError(t, db.First(&row).Error)
	require.NotNil(t, row.Stream)
	assert.Equal(t, "Science", *row.Stream)
	assert.Equal(t, "FYJC", row.Course)
	assert.Equal(t, "Chess", row.Sport)
}

func TestHandle_SQLiteSessionStore(t *testing.T) {
	db := newTestDB(t)
	sessions := repository.NewSessionRepository(db)
	svc, _ := newService(sessions, repository.NewRegistrationRepository(db), 0)

	feed(t, svc, degreePath(3, "1")[:4]...)
	got, err := sessions.Get(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StepCourse, got.Step)

	// A fresh service over the same table picks the draft up where it was left.
	resumed, _ := newService(repository.NewSessionRepository(db), repository.NewRegistrationRepository(db), 0)
	feed(t, resumed, degreePath(3, "1")[4:]...)

	n, err := sessions.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	var rows int64
	require.NoError(t, db.Model(&model.Registration{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestHandle_NoSessionDoesNotMutate(t *testing.T) {
	store := session.NewMemoryStore()
	w := &flakyWriter{}
	svc, _ := newService(store, w, 0)

	for _, ev := range []flow.Event{flow.Text(9, "hello"), flow.Button(9, "Football")} {
		reply, err := svc.Handle(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, flow.TextNoSession, reply.Text)
	}

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, w.calls)
}

func TestHandle_RestartResets(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	svc, _ := newService(store, &flakyWriter{}, 0)

	feed(t, svc, flow.Start(4), flow.Text(4, "A"), flow.Text(4, "1"))
	reply := feed(t, svc, flow.Start(4))

	assert.Equal(t, flow.TextWelcome, reply.Text)
	got, err := store.Get(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StepName, got.Step)
	assert.Equal(t, model.Fields{}, got.Fields)
}

func TestHandle_RetriesTransientPersistFailure(t *testing.T) {
	w := &flakyWriter{fails: 2}
	store := session.NewMemoryStore()
	svc, m := newService(store, w, 3)

	reply := feed(t, svc, degreePath(5, "5")...)

	assert.Contains(t, reply.Text, flow.TextComplete)
	assert.Equal(t, 3, w.calls)
	require.Len(t, w.saved, 1)
	assert.Zero(t, testutil.ToFloat64(m.PersistFailures))
}

func TestHandle_PersistFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	w := &flakyWriter{fails: -1}
	store := session.NewMemoryStore()
	svc, m := newService(store, w, 2)

	events := degreePath(6, "6")
	feed(t, svc, events[:len(events)-1]...)

	reply, err := svc.Handle(ctx, events[len(events)-1])
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistRegistration)
	assert.Equal(t, 3, w.calls)
	assert.Contains(t, reply.Text, TextSaveFailed)
	assert.NotContains(t, reply.Text, "database is locked")
	assert.True(t, reply.Menu.Contains("Football"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))

	got, err := store.Get(ctx, 6)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StepSport, got.Step)
	assert.Empty(t, got.Fields.Sport)
	assert.Equal(t, "ROLL123", got.Fields.RollNumber)

	w.mu.Lock()
	w.fails = 0
	w.mu.Unlock()
	reply = feed(t, svc, flow.Button(6, "Cricket"))
	assert.Contains(t, reply.Text, flow.TextComplete)
	require.Len(t, w.saved, 1)
	assert.Equal(t, "Cricket", w.saved[0].Sport)
}

func TestHandle_SessionStoreFailure(t *testing.T) {
	svc, _ := newService(brokenStore{session.NewMemoryStore()}, &flakyWriter{}, 0)

	reply, err := svc.Handle(context.Background(), flow.Text(7, "x"))

	assert.ErrorIs(t, err, model.ErrSessionStore)
	assert.Equal(t, TextUnknownError, reply.Text)
}

func TestHandle_ConcurrentUsersDoNotInterleave(t *testing.T) {
	w := &flakyWriter{}
	svc, _ := newService(session.NewMemoryStore(), w, 0)

	const users = 20
	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			for _, ev := range degreePath(uid, fmt.Sprintf("phone-%d", uid)) {
				_, err := svc.Handle(context.Background(), ev)
				assert.NoError(t, err)
			}
		}(int64(i))
	}
	wg.Wait()

	require.Len(t, w.saved, users)
	for _, reg := range w.saved {
		assert.Equal(t, fmt.Sprintf("phone-%d", reg.UserID), reg.Phone)
	}
}

func TestHandle_DuplicateClicksSaveOnce(t *testing.T) {
	w := &flakyWriter{}
	svc, _ := newService(session.NewMemoryStore(), w, 0)
	events := degreePath(8, "8")
	feed(t, svc, events[:len(events)-1]...)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Handle(context.Background(), flow.Button(8, "Football"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, w.saved, 1)
}

func TestHandle_DeleteRetriedAfterSave(t *testing.T) {
	ctx := context.Background()
	store := &flakyDeletes{Store: session.NewMemoryStore(), fails: 1}
	w := &flakyWriter{}
	svc, _ := newService(store, w, 2)

	reply := feed(t, svc, degreePath(20, "20")...)
	assert.Contains(t, reply.Text, flow.TextComplete)

	got, err := store.Get(ctx, 20)
	require.NoError(t, err)
	assert.Nil(t, got)

	reply = feed(t, svc, flow.Button(20, "Football"))
	assert.Equal(t, flow.TextNoSession, reply.Text)
	assert.Len(t, w.saved, 1)
}

func TestHandle_UndeletableSessionCannotSaveTwice(t *testing.T) {
	ctx := context.Background()
	store := &flakyDeletes{Store: session.NewMemoryStore(), fails: -1}
	w := &flakyWriter{}
	svc, _ := newService(store, w, 1)

	events := degreePath(21, "21")
	feed(t, svc, events[:len(events)-1]...)

	reply, err := svc.Handle(ctx, events[len(events)-1])
	assert.ErrorIs(t, err, model.ErrSessionStore)
	assert.Contains(t, reply.Text, flow.TextComplete)

	got, err := store.Get(ctx, 21)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StepDone, got.Step)

	reply, _ = svc.Handle(ctx, flow.Button(21, "Football"))
	assert.Equal(t, flow.TextNoSession, reply.Text)
	assert.Len(t, w.saved, 1)

	// Once the store recovers the stale session is cleared on the next input.
	store.mu.Lock()
	store.fails = 0
	store.mu.Unlock()
	reply = feed(t, svc, flow.Text(21, "hello"))
	assert.Equal(t, flow.TextNoSession, reply.Text)
	got, err = store.Get(ctx, 21)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandle_StampsSessionsWithClock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	store := session.NewMemoryStore()
	svc := NewRegistrationService(store, &flakyWriter{}, metrics.New(), zerolog.Nop(), 0,
		WithClock(func() time.Time { return at }))

	feed(t, svc, flow.Start(22), flow.Text(22, "Asha"))

	got, err := store.Get(ctx, 22)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StepPhone, got.Step)
	assert.Equal(t, at, got.UpdatedAt)
}
