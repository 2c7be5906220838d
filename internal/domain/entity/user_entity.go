package entity

import (
	"time"
)

// User is the aggregate root for the authentication domain.
// Password holds a bcrypt hash; plaintext never reaches the repository.
//
// The two OTP channels have independent lifecycles: OTP/OTPExpiresAt drive
// account verification, ResetOTP/ResetOTPExpiresAt drive password reset.
// A zero expiry means no active code on that channel.
type User struct {
	ID                string
	Name              string
	Email             string
	Password          string
	OTP               string
	OTPExpiresAt      time.Time
	ResetOTP          string
	ResetOTPExpiresAt time.Time
	IsVerified        bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
