package application

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/okisetiawan/authflow/internal/domain/entity"
	repo "github.com/okisetiawan/authflow/internal/domain/repository"
	"github.com/okisetiawan/authflow/pkg/helpers"
	"github.com/okisetiawan/authflow/pkg/mailer"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrInvalidOTP         = errors.New("invalid or expired otp")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidReset       = errors.New("invalid reset attempt")
)

// MailDispatcher enqueues outbound mail. The RabbitMQ publisher implements
// it in production; tests plug in fakes.
type MailDispatcher interface {
	Dispatch(ctx context.Context, job mailer.EmailJob) error
}

// QueueDispatcher publishes email jobs to the durable RabbitMQ queue
// consumed by cmd/email_worker.
type QueueDispatcher struct {
	Pub *helpers.RabbitPublisher
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job mailer.EmailJob) error {
	return d.Pub.PublishJSON(ctx, job)
}

const profileCacheTTL = 24 * time.Hour

// Service orchestrates the authentication flows: register -> verify -> login
// and forgot -> reset. It owns no state beyond its collaborators; every
// request reads and writes through the repository.
type Service struct {
	Repo     repo.UserRepository
	Sessions *helpers.SessionManager
	Mail     MailDispatcher
	Redis    *redis.Client
	Logger   *logrus.Logger
	OTPTTL   time.Duration
}

func NewService(r repo.UserRepository, sessions *helpers.SessionManager, mail MailDispatcher, rdb *redis.Client, logger *logrus.Logger, otpTTL time.Duration) *Service {
	return &Service{Repo: r, Sessions: sessions, Mail: mail, Redis: rdb, Logger: logger, OTPTTL: otpTTL}
}

// Profile is the client-safe projection of a user record.
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func ProfileOf(u *entity.User) Profile {
	return Profile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Register creates a pending-verification user and emails the OTP.
// Email uniqueness is enforced by the store at insert time; a concurrent
// duplicate registration fails here with ErrEmailTaken, never by pre-check.
func (s *Service) Register(ctx context.Context, name, email, password string) (*entity.User, error) {
	hash, err := helpers.HashPassword(password)
	if err != nil {
		return nil, err
	}
	otp, err := helpers.IssueOTP(s.OTPTTL)
	if err != nil {
		return nil, err
	}

	u := &entity.User{
		Name:         name,
		Email:        email,
		Password:     hash,
		OTP:          otp.Code,
		OTPExpiresAt: otp.ExpiresAt,
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.dispatch(ctx, email, "Verify your account", "Your OTP code is: "+otp.Code)
	return u, nil
}

// VerifyOTP flips the account to verified and clears the OTP fields in the
// same update, so the code cannot be replayed.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) error {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidUser
		}
		return err
	}

	if !helpers.ValidateOTP(u.OTP, u.OTPExpiresAt, otp, time.Now()) {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{"email": email, "expires": u.OTPExpiresAt}).Debug("rejected otp attempt")
		}
		return ErrInvalidOTP
	}

	u.IsVerified = true
	u.OTP = ""
	u.OTPExpiresAt = time.Time{}
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.dropCachedProfile(ctx, u.ID)
	return nil
}

// ResendOTP regenerates the verification code for an unverified account.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if u.IsVerified {
		return ErrAlreadyVerified
	}

	otp, err := helpers.IssueOTP(s.OTPTTL)
	if err != nil {
		return err
	}
	u.OTP = otp.Code
	u.OTPExpiresAt = otp.ExpiresAt
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}

	s.dispatch(ctx, u.Email, "Resend OTP", "Your new OTP code is: "+otp.Code)
	return nil
}

// Login authenticates a verified user and mints a session token.
// A missing user and a wrong password collapse into ErrInvalidCredentials;
// an unverified account is reported separately so the handler can answer 403.
func (s *Service) Login(ctx context.Context, email, password string) (Profile, string, time.Time, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Profile{}, "", time.Time{}, ErrInvalidCredentials
		}
		return Profile{}, "", time.Time{}, err
	}
	if !u.IsVerified {
		return Profile{}, "", time.Time{}, ErrEmailNotVerified
	}
	if !helpers.CompareHashAndPassword(u.Password, password) {
		return Profile{}, "", time.Time{}, ErrInvalidCredentials
	}

	token, exp, err := s.Sessions.Generate(u.ID)
	if err != nil {
		return Profile{}, "", time.Time{}, err
	}

	profile := ProfileOf(u)
	if s.Redis != nil {
		if err := helpers.RedisSetJSON(ctx, s.Redis, helpers.KeyUserProfile(u.ID), profile, profileCacheTTL); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", u.ID).Warn("profile cache write failed")
		}
	}
	return profile, token, exp, nil
}

// RequestPasswordReset issues a reset OTP when the email is known and does
// nothing otherwise. Both paths return nil: the response must not reveal
// whether the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}

	otp, err := helpers.IssueOTP(s.OTPTTL)
	if err != nil {
		return err
	}
	u.ResetOTP = otp.Code
	u.ResetOTPExpiresAt = otp.ExpiresAt
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}

	s.dispatch(ctx, u.Email, "Password Reset OTP", "Your reset OTP is: "+otp.Code)
	return nil
}

// ResetPassword validates the reset OTP, rehashes the new password and
// clears the reset channel. The verification OTP fields are untouched.
func (s *Service) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidReset
		}
		return err
	}

	if !helpers.ValidateOTP(u.ResetOTP, u.ResetOTPExpiresAt, otp, time.Now()) {
		return ErrInvalidOTP
	}

	hash, err := helpers.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.Password = hash
	u.ResetOTP = ""
	u.ResetOTPExpiresAt = time.Time{}
	if err := s.Repo.Update(ctx, u); err != nil {
		return err
	}
	s.dropCachedProfile(ctx, u.ID)
	return nil
}

// GetProfile loads the client-safe view of a user, through the redis cache
// when one is configured. Cache misses and cache errors fall back to the
// repository.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if s.Redis != nil {
		var cached Profile
		if ok, err := helpers.RedisGetJSON(ctx, s.Redis, helpers.KeyUserProfile(userID), &cached); err == nil && ok {
			return cached, nil
		}
	}

	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, err
	}

	profile := ProfileOf(u)
	if s.Redis != nil {
		if err := helpers.RedisSetJSON(ctx, s.Redis, helpers.KeyUserProfile(userID), profile, profileCacheTTL); err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("user_id", userID).Warn("profile cache write failed")
		}
	}
	return profile, nil
}

// dispatch enqueues an email job fire-and-forget. Delivery failures are
// logged and never surfaced to the client.
func (s *Service) dispatch(ctx context.Context, to, subject, text string) {
	if s.Mail == nil {
		return
	}
	job := mailer.EmailJob{To: to, Subject: subject, Text: text}
	if err := s.Mail.Dispatch(ctx, job); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("to", to).Warn("email dispatch failed")
	}
}

func (s *Service) dropCachedProfile(ctx context.Context, userID string) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisDel(ctx, s.Redis, helpers.KeyUserProfile(userID)); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Warn("profile cache invalidation failed")
	}
}
