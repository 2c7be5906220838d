package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okisetiawan/authflow/internal/domain/entity"
	"github.com/okisetiawan/authflow/internal/domain/repository"
)

// uniqueViolation is the Postgres error code raised by the unique email index.
const uniqueViolation = "23505"

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, otp, otp_expires_at, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, u.Name, u.Email, u.Password, u.OTP, u.OTPExpiresAt, u.IsVerified)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *UserRepository) get(ctx context.Context, where string, arg any) (*entity.User, error) {
	u := &entity.User{}

	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, otp, otp_expires_at,
		       reset_otp, reset_otp_expires_at, is_verified, created_at, updated_at
		FROM users
		`+where, arg)

	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.OTP, &u.OTPExpiresAt,
		&u.ResetOTP, &u.ResetOTPExpiresAt, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	u.UpdatedAt = time.Now()

	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = $1, email = $2, password_hash = $3, otp = $4, otp_expires_at = $5,
		    reset_otp = $6, reset_otp_expires_at = $7, is_verified = $8, updated_at = $9
		WHERE id = $10
	`, u.Name, u.Email, u.Password, u.OTP, u.OTPExpiresAt,
		u.ResetOTP, u.ResetOTPExpiresAt, u.IsVerified, u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
