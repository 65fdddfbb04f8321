package auth

import "time"

// TokenTypeAPI is the only token kind issued today. The column exists so
// refresh or personal-access tokens can live in the same table later.
const TokenTypeAPI = "api"

// APIToken is a persisted opaque credential. Token holds the random hex
// value the JWT envelope wraps; the row is the source of truth for
// validity and expiry.
type APIToken struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Token     string     `json:"-"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the token's expiry instant has passed. Tokens
// without an expiry never expire.
func (t APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
