package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSlot = "doctor-1:2030-01-07:09:00"
	testKey  = keyPrefix + testSlot
	testTTL  = 5 * time.Second
)

func newTestLocker(t *testing.T) (*SlotLocker, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { _ = db.Close() })

	l := NewSlotLocker(db, testTTL)
	l.newToken = func() string { return "token-1" }
	return l, mock
}

func expectAcquire(mock redismock.ClientMock) *redismock.ExpectedStatus {
	return mock.ExpectSetArgs(testKey, "token-1", redis.SetArgs{Mode: "NX", TTL: testTTL})
}

func TestWithSlotLock_RunsFnAndReleases(t *testing.T) {
	locker, mock := newTestLocker(t)

	expectAcquire(mock).SetVal("OK")
	mock.ExpectEvalSha(releaseScript.Hash(), []string{testKey}, "token-1").SetVal(int64(1))

	called := false
	err := locker.WithSlotLock(context.Background(), testSlot, func(ctx context.Context) error {
		called = true
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSlotLock_NotAcquired(t *testing.T) {
	locker, mock := newTestLocker(t)

	expectAcquire(mock).RedisNil()

	err := locker.WithSlotLock(context.Background(), testSlot, func(ctx context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSlotLock_RedisError(t *testing.T) {
	locker, mock := newTestLocker(t)

	expectAcquire(mock).SetErr(errors.New("connection refused"))

	err := locker.WithSlotLock(context.Background(), testSlot, func(ctx context.Context) error {
		return nil
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
	assert.Contains(t, err.Error(), "acquire slot lock")
}

func TestWithSlotLock_PropagatesFnError(t *testing.T) {
	locker, mock := newTestLocker(t)
	boom := errors.New("insert failed")

	expectAcquire(mock).SetVal("OK")
	mock.ExpectEvalSha(releaseScript.Hash(), []string{testKey}, "token-1").SetVal(int64(1))

	err := locker.WithSlotLock(context.Background(), testSlot, func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSlotLock_ReleaseFailureIsIgnored(t *testing.T) {
	locker, mock := newTestLocker(t)

	expectAcquire(mock).SetVal("OK")
	mock.ExpectEvalSha(releaseScript.Hash(), []string{testKey}, "token-1").SetErr(errors.New("timeout"))

	err := locker.WithSlotLock(context.Background(), testSlot, func(ctx context.Context) error {
		return nil
	})

	assert.NoError(t, err)
}
