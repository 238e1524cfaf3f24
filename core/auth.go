package core

import "time"

// User is an identity record. The ID is an opaque handle chosen at
// registration; the public key is stored verbatim as supplied by the client.
type User struct {
	ID        string    // Opaque stable handle
	PublicKey string    // PEM-encoded public key, unique per user
	PushToken string    // Opaque push delivery handle, may be empty
	CreatedAt time.Time // When the user registered
}

// Challenge is one outstanding login attempt. At most one live challenge
// exists per user; issuing a new one supersedes the previous.
type Challenge struct {
	Nonce     string    // Random single-use value the client must sign
	UserID    string    // Owning user
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // IssuedAt + challenge TTL
}

// Session is the claim set carried by an access token. It is never
// persisted; tokens are verified statelessly except for the revocation check.
type Session struct {
	ID        string    // Token ID (jti)
	Subject   string    // User ID the token was issued to
	IssuedAt  time.Time // When the token was minted
	ExpiresAt time.Time // When the token expires
}

// RevokedToken is a denylist entry for a token invalidated before its
// natural expiry. Only a hash of the token is kept, never the token itself,
// and the entry carries the token's own expiry so it never outlives it.
type RevokedToken struct {
	Fingerprint string    // SHA-256 of the raw token, hex
	ExpiresAt   time.Time // Copied from the revoked token's expiry
	RevokedAt   time.Time // When the revocation was recorded
	Reason      string    // Caller-supplied reason, informational only
}

// RateBucket counts requests from one client fingerprint within the
// current fixed window. Created lazily on first request.
type RateBucket struct {
	Fingerprint   string    // Daily client fingerprint
	Count         int       // Requests seen since the window started
	WindowResetAt time.Time // When the current window ends
}
