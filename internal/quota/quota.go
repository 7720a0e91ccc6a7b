// Package quota decides whether a caller may run another conversion and
// records that one happened. Registered users are counted against the
// persisted account counter; anonymous clients against a Store keyed by
// client address.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/entities"
)

// ErrLimitReached is returned by Check once a caller without an active plan
// has used up the free conversions.
var ErrLimitReached = errors.New("free conversion limit reached")

// DeniedCode is the machine-readable code sent to clients on denial.
const DeniedCode = "free_limit_reached"

// Caller is the resolved principal of a conversion request: a registered
// user when User is set, otherwise an anonymous client identified by
// ClientKey.
type Caller struct {
	User      *entities.User
	ClientKey string
}

func (c Caller) Registered() bool { return c.User != nil }

// Tag is the identity string used in log lines.
func (c Caller) Tag() string {
	if c.User != nil {
		return "user:" + c.User.ID
	}
	return "anon:" + c.ClientKey
}

// Store tracks usage counts for anonymous callers.
type Store interface {
	Get(ctx context.Context, key string) (int, error)
	Increment(ctx context.Context, key string) (int, error)
}

// UserCounter persists the usage counter of registered users.
type UserCounter interface {
	IncrementConversionsUsed(ctx context.Context, userID string) error
}

type Ledger struct {
	store Store
	users UserCounter
	limit int
	now   func() time.Time
}

func NewLedger(store Store, users UserCounter, freeLimit int) *Ledger {
	if freeLimit <= 0 {
		freeLimit = 3
	}
	return &Ledger{
		store: store,
		users: users,
		limit: freeLimit,
		now:   time.Now,
	}
}

// Check reports whether the caller may convert. It runs before any
// admission work so quota-rejected requests never occupy a worker slot.
func (l *Ledger) Check(ctx context.Context, c Caller) error {
	if c.User != nil {
		if c.User.PlanActive(l.now()) {
			return nil
		}
		if c.User.ConversionsUsed >= l.limit {
			return ErrLimitReached
		}
		return nil
	}

	used, err := l.store.Get(ctx, c.ClientKey)
	if err != nil {
		// Quota state is best-effort; an unreachable store must not turn
		// into a conversion outage.
		log.Warn().Err(err).Str("caller", c.Tag()).Msg("quota store read failed, allowing")
		return nil
	}
	if used >= l.limit {
		return ErrLimitReached
	}
	return nil
}

// Commit charges one conversion. Call it only after a confirmed successful
// transcode; a failed transcode never consumes quota. Persistence failures
// are logged, never surfaced: the conversion already succeeded and must not
// fail retroactively.
func (l *Ledger) Commit(ctx context.Context, c Caller) {
	if c.User != nil {
		if c.User.PlanActive(l.now()) {
			return
		}
		if err := l.users.IncrementConversionsUsed(ctx, c.User.ID); err != nil {
			log.Warn().Err(err).Str("caller", c.Tag()).Msg("failed to persist conversions_used")
		}
		return
	}

	if _, err := l.store.Increment(ctx, c.ClientKey); err != nil {
		log.Warn().Err(err).Str("caller", c.Tag()).Msg("failed to increment anonymous usage")
	}
}
