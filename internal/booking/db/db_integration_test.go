package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/models"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func setupPostgres(t *testing.T) (*db.DB, *bun.DB) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "booking",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://booking:booking@%s:%s/booking?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, sqldb.Ping())

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), nil)
	require.NoError(t, runner.RunMigrations())

	return &db.DB{Bun: bunDB}, bunDB
}

func TestPostgres_ConcurrentReservationsNeverOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	store, bunDB := setupPostgres(t)
	ctx := context.Background()
	insertEvent(t, bunDB, "evt-pg", time.Now().UTC().AddDate(0, 0, 7))

	capacity := defaults("evt-pg")
	capacity.MaxSeats = 5

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	errs := []error{}

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := store.ReserveSeats(ctx, newBooking("evt-pg", 1, models.BookingPending), capacity)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if a.Available {
				reserved++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 5, reserved)

	booked, err := store.SumBookedSeats(ctx, "evt-pg")
	require.NoError(t, err)
	assert.Equal(t, 5, booked)

	count, err := bunDB.NewSelect().Model((*models.BookingSettings)(nil)).Where("event_id = ?", "evt-pg").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgres_DuplicatePaymentRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	store, bunDB := setupPostgres(t)
	ctx := context.Background()
	insertEvent(t, bunDB, "evt-dup", time.Now().UTC().AddDate(0, 0, 7))

	first := newBooking("evt-dup", 2, models.BookingConfirmed)
	first.PaymentID = "sess_1"
	require.NoError(t, store.InsertBooking(ctx, first))

	dup := newBooking("evt-dup", 2, models.BookingConfirmed)
	dup.PaymentID = "sess_1"
	assert.ErrorIs(t, store.InsertBooking(ctx, dup), models.ErrDuplicate)
}
