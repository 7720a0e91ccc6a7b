// Package storage is the pgx-backed account store. It owns the persisted
// user records, including the conversions_used counter the quota ledger
// charges against.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lakyn80/covertor-webp-lukiora/internal/entities"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("user already exists")
)

const userColumns = `id, email, first_name, last_name, password_hash, plan,
	plan_expires_at, is_vip, conversions_used, created_at, updated_at`

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

func (s *dbStorage) CreateUser(ctx context.Context, email, firstName, lastName, passwordHash string) (entities.User, error) {
	row := s.dbpool.QueryRow(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		uuid.NewString(), email, firstName, lastName, passwordHash,
	)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return entities.User{}, ErrEmailTaken
		}
		return entities.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *dbStorage) GetUserByEmail(ctx context.Context, email string) (entities.User, error) {
	row := s.dbpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return wrapNotFound(scanUser(row))
}

func (s *dbStorage) GetUserByID(ctx context.Context, id string) (entities.User, error) {
	row := s.dbpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return wrapNotFound(scanUser(row))
}

// IncrementConversionsUsed charges one conversion to the persisted counter,
// treating a missing value as zero.
func (s *dbStorage) IncrementConversionsUsed(ctx context.Context, userID string) error {
	_, err := s.dbpool.Exec(ctx, `
		UPDATE users
		SET conversions_used = COALESCE(conversions_used, 0) + 1,
		    updated_at = now()
		WHERE id = $1`, userID)
	return err
}

// ExtendPlan pushes the membership expiry out by days, stacking on the
// current expiry when it is still in the future.
func (s *dbStorage) ExtendPlan(ctx context.Context, userID, plan string, days int) (entities.User, error) {
	row := s.dbpool.QueryRow(ctx, `
		UPDATE users
		SET plan = $2,
		    plan_expires_at = GREATEST(COALESCE(plan_expires_at, now()), now()) + make_interval(days => $3),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		userID, plan, days,
	)
	return wrapNotFound(scanUser(row))
}

func scanUser(row pgx.Row) (entities.User, error) {
	var u entities.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.Plan, &u.PlanExpiresAt, &u.IsVIP, &u.ConversionsUsed,
		&u.CreatedTimestamp, &u.UpdatedTimestamp,
	)
	return u, err
}

func wrapNotFound(u entities.User, err error) (entities.User, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.User{}, ErrNotFound
	}
	if err != nil {
		return entities.User{}, err
	}
	return u, nil
}
