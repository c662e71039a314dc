package booking

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// ---------------- MOCKS ----------------

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateSession(ctx context.Context, req models.PaymentSessionRequest) (*models.PaymentSession, error) {
	args := m.Called(ctx, req)
	var session *models.PaymentSession
	if v := args.Get(0); v != nil {
		session = v.(*models.PaymentSession)
	}
	return session, args.Error(1)
}

// MockCheckoutGateway can also verify and expire sessions.
type MockCheckoutGateway struct {
	MockGateway
}

func (m *MockCheckoutGateway) SessionStatus(ctx context.Context, sessionID string) (models.PaymentStatus, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(models.PaymentStatus), args.Error(1)
}

func (m *MockCheckoutGateway) ExpireSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishBookingReserved(b models.Booking) error {
	return m.Called(b).Error(0)
}

func (m *MockPublisher) PublishBookingConfirmed(b models.Booking) error {
	return m.Called(b).Error(0)
}

func (m *MockPublisher) PublishBookingCancelled(b models.Booking) error {
	return m.Called(b).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendConfirmation(ctx context.Context, data models.ConfirmationData) error {
	return m.Called(ctx, data).Error(0)
}

// ---------------- SETUP ----------------

type testEnv struct {
	svc       *BookingService
	store     *db.DB
	bunDB     *bun.DB
	mr        *miniredis.Miniredis
	publisher *MockPublisher
	notifier  *MockNotifier
}

func setupService(t *testing.T, gateway PaymentGateway) *testEnv {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	for _, model := range []interface{}{
		(*models.Event)(nil),
		(*models.BookingSettings)(nil),
		(*models.Booking)(nil),
		(*models.Payment)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	publisher := new(MockPublisher)
	publisher.On("PublishBookingReserved", mock.Anything).Return(nil).Maybe()
	publisher.On("PublishBookingConfirmed", mock.Anything).Return(nil).Maybe()
	publisher.On("PublishBookingCancelled", mock.Anything).Return(nil).Maybe()

	notifier := new(MockNotifier)
	store := &db.DB{Bun: bunDB}

	svc := NewBookingService(store, bookingredis.NewRedis(client, nil), publisher, notifier, gateway, Options{
		Booking: config.BookingConfig{
			DefaultMaxSeats:        50,
			DefaultSeatsPerBooking: 10,
			DefaultDeadline:        "1 hour",
			ReconcileLockTTL:       30 * time.Second,
		},
		PublicURL: "https://club.example/",
		Currency:  "eur",
	}, nil)

	return &testEnv{svc: svc, store: store, bunDB: bunDB, mr: mr, publisher: publisher, notifier: notifier}
}

func (e *testEnv) addEvent(t *testing.T, id string, price int64) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:        id,
		Title:     "Soirée " + id,
		StartDate: time.Now().UTC().AddDate(0, 0, 10).Truncate(24 * time.Hour),
		StartTime: "20:30",
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}
	_, err := e.bunDB.NewInsert().Model(event).Exec(context.Background())
	require.NoError(t, err)
	return event
}

func (e *testEnv) setCapacity(t *testing.T, eventID string, maxSeats, perBooking int) {
	t.Helper()
	_, err := e.bunDB.NewInsert().Model(&models.BookingSettings{
		EventID:         eventID,
		MaxSeats:        maxSeats,
		SeatsPerBooking: perBooking,
		BookingDeadline: "1 hour",
		CreatedAt:       time.Now().UTC(),
	}).Exec(context.Background())
	require.NoError(t, err)
}

func (e *testEnv) countBookings(t *testing.T, eventID string) int {
	t.Helper()
	n, err := e.bunDB.NewSelect().Model((*models.Booking)(nil)).Where("event_id = ?", eventID).Count(context.Background())
	require.NoError(t, err)
	return n
}

func (e *testEnv) settingsRows(t *testing.T, eventID string) []models.BookingSettings {
	t.Helper()
	var rows []models.BookingSettings
	require.NoError(t, e.bunDB.NewSelect().Model(&rows).Where("event_id = ?", eventID).Scan(context.Background()))
	return rows
}

func draftFor(eventID string, seats int, price int64) models.BookingDraft {
	d := validDraft()
	d.EventID = eventID
	d.Seats = seats
	d.TotalAmount = models.Amount(price * int64(seats))
	return d
}

// ---------------- AVAILABILITY ----------------

func TestCheckAvailability_FirstAccessCreatesDefaults(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-new", 2100)
	ctx := context.Background()

	a := env.svc.CheckAvailability(ctx, "evt-new", 1)
	assert.True(t, a.Available)
	require.NotNil(t, a.RemainingSeats)
	assert.Equal(t, 50, *a.RemainingSeats)
	assert.Equal(t, 50, *a.MaxSeats)

	env.svc.CheckAvailability(ctx, "evt-new", 3)
	rows := env.settingsRows(t, "evt-new")
	require.Len(t, rows, 1)
	assert.Equal(t, 50, rows[0].MaxSeats)
	assert.Equal(t, 10, rows[0].SeatsPerBooking)
	assert.Equal(t, "1 hour", rows[0].BookingDeadline)
}

func TestCheckAvailability_Rule(t *testing.T) {
	tests := []struct {
		name      string
		booked    []models.BookingStatus
		requested int
		want      bool
		remaining int
	}{
		{"empty room", nil, 4, true, 8},
		{"fills the room", []models.BookingStatus{models.BookingConfirmed, models.BookingPending}, 4, true, 4},
		{"one too many", []models.BookingStatus{models.BookingConfirmed, models.BookingPending}, 5, false, 4},
		{"over per-booking cap", nil, 6, false, 8},
		{"cancelled ignored", []models.BookingStatus{models.BookingCancelled, models.BookingCancelled}, 5, true, 8},
		{"zero seats", nil, 0, false, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, nil)
			env.addEvent(t, "evt-r", 2100)
			env.setCapacity(t, "evt-r", 8, 5)
			for i, status := range tt.booked {
				b := draftFor("evt-r", 2, 2100).Booking()
				b.ID = "bk-" + string(rune('a'+i))
				b.Status = status
				require.NoError(t, env.store.InsertBooking(context.Background(), &b))
			}

			a := env.svc.CheckAvailability(context.Background(), "evt-r", tt.requested)
			assert.Equal(t, tt.want, a.Available)
			assert.Equal(t, tt.remaining, *a.RemainingSeats)
			assert.Empty(t, a.Error)
		})
	}
}

func TestCheckAvailability_StorageFailure(t *testing.T) {
	env := setupService(t, nil)
	require.NoError(t, env.bunDB.Close())

	a := env.svc.CheckAvailability(context.Background(), "evt-x", 1)
	assert.False(t, a.Available)
	assert.Equal(t, "availability check failed", a.Error)
	assert.Nil(t, a.RemainingSeats)
}

func TestEnsureSettings_RequiresEvent(t *testing.T) {
	env := setupService(t, nil)
	_, err := env.svc.EnsureSettings(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}

// ---------------- BOOKINGS ----------------

func TestCreateBooking_Direct(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-d", 2100)
	env.notifier.On("SendConfirmation", mock.Anything, mock.MatchedBy(func(d models.ConfirmationData) bool {
		return d.EventTitle == "Soirée evt-d" && d.Seats == 3 && d.EventTime == "20:30" && d.UserEmail == "camille+shows@example.org"
	})).Return(nil).Once()

	draft := draftFor("evt-d", 3, 2100)
	draft.TotalAmount = 1 // recomputed from the event price
	b, err := env.svc.CreateBooking(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, int64(6300), b.TotalAmount)

	env.notifier.AssertExpectations(t)
	env.publisher.AssertCalled(t, "PublishBookingConfirmed", mock.Anything)
}

func TestCreateBooking_Unavailable(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-full", 2100)
	env.setCapacity(t, "evt-full", 2, 2)
	env.notifier.On("SendConfirmation", mock.Anything, mock.Anything).Return(nil)

	_, err := env.svc.CreateBooking(context.Background(), draftFor("evt-full", 2, 2100))
	require.NoError(t, err)

	_, err = env.svc.CreateBooking(context.Background(), draftFor("evt-full", 1, 2100))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, env.countBookings(t, "evt-full"))
}

func TestCreateBooking_UnknownEvent(t *testing.T) {
	env := setupService(t, nil)
	_, err := env.svc.CreateBooking(context.Background(), draftFor("evt-none", 1, 2100))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelBooking_Idempotent(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-c", 2100)
	env.notifier.On("SendConfirmation", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	b, err := env.svc.CreateBooking(ctx, draftFor("evt-c", 4, 2100))
	require.NoError(t, err)
	assert.Equal(t, 46, *env.svc.CheckAvailability(ctx, "evt-c", 1).RemainingSeats)

	first, err := env.svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, first.Status)
	assert.Equal(t, 50, *env.svc.CheckAvailability(ctx, "evt-c", 1).RemainingSeats)

	second, err := env.svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, second.Status)
	assert.Equal(t, 50, *env.svc.CheckAvailability(ctx, "evt-c", 1).RemainingSeats)

	env.publisher.AssertNumberOfCalls(t, "PublishBookingCancelled", 1)

	_, err = env.svc.CancelBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBooking(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-u", 2000)
	env.setCapacity(t, "evt-u", 6, 5)
	env.notifier.On("SendConfirmation", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	b, err := env.svc.CreateBooking(ctx, draftFor("evt-u", 2, 2000))
	require.NoError(t, err)
	_, err = env.svc.CreateBooking(ctx, draftFor("evt-u", 2, 2000))
	require.NoError(t, err)

	name := "Camille Dupont"
	seats := 4
	updated, err := env.svc.UpdateBooking(ctx, b.ID, models.BookingUpdate{UserName: &name, Seats: &seats})
	require.NoError(t, err)
	assert.Equal(t, "Camille Dupont", updated.UserName)
	assert.Equal(t, 4, updated.Seats)
	assert.Equal(t, int64(8000), updated.TotalAmount)

	seats = 5
	_, err = env.svc.UpdateBooking(ctx, b.ID, models.BookingUpdate{Seats: &seats})
	assert.ErrorIs(t, err, ErrUnavailable)

	badPhone := "123"
	_, err = env.svc.UpdateBooking(ctx, b.ID, models.BookingUpdate{UserPhone: &badPhone})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.UpdateBooking(ctx, b.ID, models.BookingUpdate{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	_, err = env.svc.UpdateBooking(ctx, b.ID, models.BookingUpdate{UserName: &name})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetBooking_WithEvent(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-g", 2100)
	env.notifier.On("SendConfirmation", mock.Anything, mock.Anything).Return(nil)

	b, err := env.svc.CreateBooking(context.Background(), draftFor("evt-g", 1, 2100))
	require.NoError(t, err)

	got, err := env.svc.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Event)
	assert.Equal(t, "Soirée evt-g", got.Event.Title)

	_, err = env.svc.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUserBookings(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-m", 2100)
	env.notifier.On("SendConfirmation", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	_, err := env.svc.CreateBooking(ctx, draftFor("evt-m", 1, 2100))
	require.NoError(t, err)

	bookings, err := env.svc.GetUserBookings(ctx, "CAMILLE+shows@example.org")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	bookings, err = env.svc.GetUserBookings(ctx, "nobody@example.org")
	require.NoError(t, err)
	assert.Empty(t, bookings)

	_, err = env.svc.GetUserBookings(ctx, "not-an-email")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetUpcomingEvents(t *testing.T) {
	env := setupService(t, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		env.addEvent(t, id, 2100)
	}
	events, err := env.svc.GetUpcomingEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

// ---------------- SCENARIOS ----------------

func TestScenario_CapacityExhausted(t *testing.T) {
	env := setupService(t, nil)
	env.addEvent(t, "evt-two", 2100)
	env.setCapacity(t, "evt-two", 2, 2)
	env.notifier.On("SendConfirmation", mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	a := env.svc.CheckAvailability(ctx, "evt-two", 2)
	assert.True(t, a.Available)
	assert.Equal(t, 2, *a.RemainingSeats)

	_, err := env.svc.CreateBooking(ctx, draftFor("evt-two", 2, 2100))
	require.NoError(t, err)

	a = env.svc.CheckAvailability(ctx, "evt-two", 1)
	assert.False(t, a.Available)
	assert.Equal(t, 0, *a.RemainingSeats)
}

func TestGatewayErrorsAreWrapped(t *testing.T) {
	gw := new(MockGateway)
	env := setupService(t, gw)
	env.addEvent(t, "evt-gw", 2100)
	gw.On("CreateSession", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := env.svc.InitiatePayment(context.Background(), "21.00", draftFor("evt-gw", 1, 2100))
	assert.ErrorIs(t, err, ErrPaymentInitiationFailed)
	assert.Equal(t, 502, StatusCode(err))
	assert.Equal(t, 0, env.countBookings(t, "evt-gw"))
}
