package helpers

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// OTP holds a freshly issued one-time code and its expiry.
type OTP struct {
	Code      string
	ExpiresAt time.Time
}

// GenOTPCode generates a secure random 6-digit OTP code. Codes are drawn
// uniformly from [100000, 999999] so they never carry a leading zero.
func GenOTPCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	n := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	if n < 0 {
		n = -n
	}
	code := 100000 + n%900000
	return fmt.Sprintf("%06d", code), nil
}

// IssueOTP generates a code valid for the given TTL.
func IssueOTP(ttl time.Duration) (OTP, error) {
	code, err := GenOTPCode()
	if err != nil {
		return OTP{}, err
	}
	return OTP{Code: code, ExpiresAt: time.Now().Add(ttl)}, nil
}

// ValidateOTP reports whether the submitted code matches the stored one and
// the stored expiry has not passed. Both codes are trimmed before the exact
// string compare. An empty stored code never validates, so a cleared (used)
// code cannot be replayed. Expired-but-equal codes fail the same way as
// mismatches; callers must not distinguish the two.
func ValidateOTP(storedCode string, storedExpiry time.Time, submitted string, now time.Time) bool {
	saved := strings.TrimSpace(storedCode)
	entered := strings.TrimSpace(submitted)
	if saved == "" || saved != entered {
		return false
	}
	return now.Before(storedExpiry)
}
