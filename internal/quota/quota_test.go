package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/entities"
)

type fakeUserCounter struct {
	increments map[string]int
	err        error
}

func newFakeUserCounter() *fakeUserCounter {
	return &fakeUserCounter{increments: make(map[string]int)}
}

func (f *fakeUserCounter) IncrementConversionsUsed(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.increments[userID]++
	return nil
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (int, error)       { return 0, f.err }
func (f failingStore) Increment(context.Context, string) (int, error) { return 0, f.err }

func TestAnonymousFreeLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ledger := NewLedger(store, newFakeUserCounter(), 3)

	caller := Caller{ClientKey: "203.0.113.7"}

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Check(ctx, caller), "conversion %d should be allowed", i+1)
		ledger.Commit(ctx, caller)
	}

	assert.ErrorIs(t, ledger.Check(ctx, caller), ErrLimitReached)
}

func TestAnonymousCallersAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(NewMemoryStore(), newFakeUserCounter(), 1)

	first := Caller{ClientKey: "10.0.0.1"}
	second := Caller{ClientKey: "10.0.0.2"}

	require.NoError(t, ledger.Check(ctx, first))
	ledger.Commit(ctx, first)

	assert.ErrorIs(t, ledger.Check(ctx, first), ErrLimitReached)
	assert.NoError(t, ledger.Check(ctx, second))
}

func TestCheckFailsOpenOnStoreError(t *testing.T) {
	ledger := NewLedger(failingStore{err: errors.New("redis down")}, newFakeUserCounter(), 3)

	err := ledger.Check(context.Background(), Caller{ClientKey: "10.0.0.1"})
	assert.NoError(t, err)
}

func TestRegisteredUserCountsAgainstAccount(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserCounter()
	ledger := NewLedger(NewMemoryStore(), users, 3)

	user := &entities.User{ID: "u1", ConversionsUsed: 2}
	caller := Caller{User: user}

	require.NoError(t, ledger.Check(ctx, caller))
	ledger.Commit(ctx, caller)
	assert.Equal(t, 1, users.increments["u1"])

	user.ConversionsUsed = 3
	assert.ErrorIs(t, ledger.Check(ctx, caller), ErrLimitReached)
}

func TestActivePlanBypassesLimit(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserCounter()
	ledger := NewLedger(NewMemoryStore(), users, 3)

	expires := time.Now().Add(24 * time.Hour)
	caller := Caller{User: &entities.User{ID: "u2", ConversionsUsed: 1000, PlanExpiresAt: &expires}}

	require.NoError(t, ledger.Check(ctx, caller))
	ledger.Commit(ctx, caller)

	assert.Zero(t, users.increments["u2"], "active plan must not be charged")
}

func TestVIPBypassesLimit(t *testing.T) {
	ledger := NewLedger(NewMemoryStore(), newFakeUserCounter(), 3)
	caller := Caller{User: &entities.User{ID: "u3", IsVIP: true, ConversionsUsed: 99}}

	assert.NoError(t, ledger.Check(context.Background(), caller))
}

func TestExpiredPlanFallsBackToLimit(t *testing.T) {
	ledger := NewLedger(NewMemoryStore(), newFakeUserCounter(), 3)

	expired := time.Now().Add(-time.Hour)
	caller := Caller{User: &entities.User{ID: "u4", ConversionsUsed: 3, PlanExpiresAt: &expired}}

	assert.ErrorIs(t, ledger.Check(context.Background(), caller), ErrLimitReached)
}

func TestCommitSwallowsPersistenceErrors(t *testing.T) {
	users := newFakeUserCounter()
	users.err = errors.New("db down")
	ledger := NewLedger(failingStore{err: errors.New("redis down")}, users, 3)

	// Neither path may panic or surface the error.
	ledger.Commit(context.Background(), Caller{User: &entities.User{ID: "u5"}})
	ledger.Commit(context.Background(), Caller{ClientKey: "10.0.0.9"})
}

func TestCallerTag(t *testing.T) {
	assert.Equal(t, "user:abc", Caller{User: &entities.User{ID: "abc"}}.Tag())
	assert.Equal(t, "anon:1.2.3.4", Caller{ClientKey: "1.2.3.4"}.Tag())
}
