package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/internal/anonymize"
	"github.com/hermnet/hermnet/ports"
	"github.com/hermnet/hermnet/service"
)

// Context keys set by the middleware chain.
const (
	ctxClientFingerprint = "clientFingerprint"
	ctxUserID            = "userID"
	ctxBearerToken       = "bearerToken"
)

// AnonymizerMiddleware replaces the client address with its daily
// fingerprint before anything else runs. Only the fingerprint is logged;
// the raw address never reaches a log line or a downstream handler.
func AnonymizerMiddleware(anonymizer *anonymize.Anonymizer, clock ports.Clock, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := anonymizer.Fingerprint(c.ClientIP(), clock.Now())
		c.Set(ctxClientFingerprint, fingerprint)

		log.WithFields(logrus.Fields{
			"client": fingerprint,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Debug("request received")

		c.Next()
	}
}

// RateLimitMiddleware rejects over-limit clients with 429 before any
// handler executes.
func RateLimitMiddleware(limiter *service.RateLimiter, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := c.GetString(ctxClientFingerprint)
		if fingerprint == "" {
			fingerprint = anonymize.Unknown
		}

		allowed, err := limiter.Admit(c.Request.Context(), fingerprint)
		if err != nil {
			log.WithError(err).Error("rate limiter failure")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too Many Requests"})
			return
		}

		c.Next()
	}
}

// AuthMiddleware validates the bearer token: structure and signature,
// then expiry, then the revocation denylist.
func AuthMiddleware(tokenizer ports.Tokenizer, registry *service.RevocationRegistry, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}
		token := auth[7:]

		session, err := tokenizer.TokenToSession(token)
		if err != nil {
			if err == core.ErrTokenExpired {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		revoked, err := registry.IsRevoked(c.Request.Context(), token)
		if err != nil {
			log.WithError(err).Error("revocation check failure")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token revoked"})
			return
		}

		c.Set(ctxUserID, session.Subject)
		c.Set(ctxBearerToken, token)

		c.Next()
	}
}
