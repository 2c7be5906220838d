package repository

import (
	"context"
	"errors"

	"github.com/okisetiawan/authflow/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Create when the email is already
	// taken. The insert itself must fail atomically on the unique index;
	// callers never pre-check existence.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}
