package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserSecurityCredential stores server-owned transaction PIN security
// metadata. The hash is bcrypt and never leaves the service.
type UserSecurityCredential struct {
	UserID         uuid.UUID  `json:"user_id"`
	PINHash        string     `json:"-"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// IsLocked reports whether the credential is inside a lockout window at the
// given instant.
func (c *UserSecurityCredential) IsLocked(now time.Time) bool {
	return c != nil && c.LockedUntil != nil && c.LockedUntil.After(now)
}
