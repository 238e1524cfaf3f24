package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the registered claims carried by an access token.
// Subject is the user id, ID the jti the revocation registry correlates on.
type AccessClaims struct {
	jwt.RegisteredClaims
}
