package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketflow/internal/refunds"
	"ticketflow/internal/shared/config"
	"ticketflow/internal/shared/constants"
	"ticketflow/pkg/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSweeper struct {
	calls int
	limit int
	err   error
}

func (s *stubSweeper) ExpireStale(ctx context.Context, limit int) (int, error) {
	s.calls++
	s.limit = limit
	return 2, s.err
}

type stubReconciler struct {
	calls     int
	olderThan time.Duration
}

func (s *stubReconciler) Reconcile(ctx context.Context, olderThan time.Duration, limit int) (*refunds.ReconcileReport, error) {
	s.calls++
	s.olderThan = olderThan
	return &refunds.ReconcileReport{}, nil
}

// leaseBook grants each key to one holder at a time
type leaseBook struct {
	held     map[string]bool
	keys     []string
	released int
	err      error
}

type bookLease struct {
	book *leaseBook
	key  string
}

func (l *bookLease) Acquire(ctx context.Context) (bool, error) {
	if l.book.err != nil {
		return false, l.book.err
	}
	l.book.keys = append(l.book.keys, l.key)
	if l.book.held[l.key] {
		return false, nil
	}
	l.book.held[l.key] = true
	return true, nil
}

func (l *bookLease) Release(ctx context.Context) error {
	delete(l.book.held, l.key)
	l.book.released++
	return nil
}

func (b *leaseBook) factory() LeaseFactory {
	return func(key string, ttl time.Duration) Lease {
		return &bookLease{book: b, key: key}
	}
}

var jobsConfig = config.JobsConfig{
	SweepInterval:      time.Minute,
	SweepBatchSize:     100,
	ReconcileInterval:  5 * time.Minute,
	ReconcileAfter:     10 * time.Minute,
	ReconcileBatchSize: 50,
	LockTTL:            30 * time.Second,
}

func TestExpireReservations_RunsWithLease(t *testing.T) {
	book := &leaseBook{held: map[string]bool{}}
	sweeper := &stubSweeper{}
	runner := NewRunner(sweeper, &stubReconciler{}, book.factory(), jobsConfig, logger.NewNop())

	assert.True(t, runner.ExpireReservations(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 100, sweeper.limit)
	assert.Equal(t, []string{constants.JobLockKey(JobExpireReservations)}, book.keys)
	assert.Equal(t, 1, book.released)
}

func TestExpireReservations_SkipsWhenLeaseHeld(t *testing.T) {
	book := &leaseBook{held: map[string]bool{constants.JobLockKey(JobExpireReservations): true}}
	sweeper := &stubSweeper{}
	runner := NewRunner(sweeper, &stubReconciler{}, book.factory(), jobsConfig, logger.NewNop())

	assert.False(t, runner.ExpireReservations(context.Background()))
	assert.Zero(t, sweeper.calls)
	assert.Zero(t, book.released)
}

func TestExpireReservations_LeaseUnavailable(t *testing.T) {
	book := &leaseBook{held: map[string]bool{}, err: errors.New("connection refused")}
	sweeper := &stubSweeper{}
	runner := NewRunner(sweeper, &stubReconciler{}, book.factory(), jobsConfig, logger.NewNop())

	assert.False(t, runner.ExpireReservations(context.Background()))
	assert.Zero(t, sweeper.calls)
}

func TestExpireReservations_FailedPassReleasesLease(t *testing.T) {
	book := &leaseBook{held: map[string]bool{}}
	sweeper := &stubSweeper{err: errors.New("db gone")}
	runner := NewRunner(sweeper, &stubReconciler{}, book.factory(), jobsConfig, logger.NewNop())

	assert.True(t, runner.ExpireReservations(context.Background()))
	assert.Empty(t, book.held)
}

func TestReconcileRefunds_PassesThreshold(t *testing.T) {
	book := &leaseBook{held: map[string]bool{}}
	reconciler := &stubReconciler{}
	runner := NewRunner(&stubSweeper{}, reconciler, book.factory(), jobsConfig, logger.NewNop())

	assert.True(t, runner.ReconcileRefunds(context.Background()))
	assert.Equal(t, 1, reconciler.calls)
	assert.Equal(t, 10*time.Minute, reconciler.olderThan)
}

func TestRedisLeases(t *testing.T) {
	client, mock := redismock.NewClientMock()
	sweeper := &stubSweeper{}
	runner := NewRunner(sweeper, &stubReconciler{}, RedisLeases(client), jobsConfig, logger.NewNop())

	mock.MatchExpectationsInOrder(true)
	mock.Regexp().ExpectSetNX(constants.JobLockKey(JobExpireReservations), `.*`, jobsConfig.LockTTL).SetVal(false)

	assert.False(t, runner.ExpireReservations(context.Background()))
	assert.Zero(t, sweeper.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_StopsOnCancel(t *testing.T) {
	runner := NewRunner(&stubSweeper{}, &stubReconciler{}, (&leaseBook{held: map[string]bool{}}).factory(), jobsConfig, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runner.Run(ctx))
}
