// Package anonymize derives opaque daily fingerprints from client addresses
// so the rest of the system never handles a raw network address.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Unknown is the fingerprint for requests without a resolvable address.
// Callers treat it as a valid, if coarse, fingerprint rather than an error.
const Unknown = "unknown"

// Anonymizer hashes addresses with a base secret and a daily rotating salt.
// Same-day requests from one address map to one fingerprint (needed for rate
// limiting); across days the fingerprints are uncorrelated.
type Anonymizer struct {
	secret string
}

// New creates an Anonymizer with the given base secret.
func New(secret string) *Anonymizer {
	return &Anonymizer{secret: secret}
}

// Fingerprint returns the fixed-length hex fingerprint of addr for the UTC
// calendar day of now. Empty addresses map to Unknown.
func (a *Anonymizer) Fingerprint(addr string, now time.Time) string {
	if addr == "" {
		return Unknown
	}

	dailySalt := a.secret + now.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(addr + dailySalt))
	return hex.EncodeToString(sum[:])
}
