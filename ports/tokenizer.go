package ports

import "github.com/hermnet/hermnet/core"

// Tokenizer converts between sessions and signed bearer tokens.
type Tokenizer interface {
	// SessionToToken mints a signed token carrying the session claims.
	SessionToToken(session *core.Session) (string, error)

	// TokenToSession parses and validates a token: structural validity
	// and signature first, then expiry. Returns core.ErrTokenExpired for
	// an expired token and core.ErrInvalidToken for everything else.
	TokenToSession(token string) (*core.Session, error)
}
