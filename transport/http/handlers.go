package http

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/service"
)

// Handlers contains the HTTP handlers for the security perimeter.
type Handlers struct {
	users    *service.UserService
	auth     *service.AuthService
	registry *service.RevocationRegistry
	mailbox  *service.MailboxService
	log      logrus.FieldLogger
}

// NewHandlers creates the handler set.
func NewHandlers(
	users *service.UserService,
	auth *service.AuthService,
	registry *service.RevocationRegistry,
	mailbox *service.MailboxService,
	log logrus.FieldLogger,
) *Handlers {
	return &Handlers{
		users:    users,
		auth:     auth,
		registry: registry,
		mailbox:  mailbox,
		log:      log,
	}
}

// Register handles user registration.
func (h *Handlers) Register(c *gin.Context) {
	var req struct {
		ID        string `json:"id" binding:"required"`
		PublicKey string `json:"publicKey" binding:"required"`
		PushToken string `json:"pushToken"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.ID, req.PublicKey, req.PushToken)
	if err != nil {
		if err == core.ErrUserExists {
			c.JSON(http.StatusConflict, gin.H{"error": "Id already in use"})
			return
		}
		h.log.WithError(err).Error("registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        user.ID,
		"publicKey": user.PublicKey,
		"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Challenge handles the challenge request.
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	nonce, err := h.auth.RequestChallenge(c.Request.Context(), req.UserID)
	if err != nil {
		if err == core.ErrUserNotFound {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown user"})
			return
		}
		h.log.WithError(err).Error("challenge issuance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// Login completes the challenge-response flow and returns an access token.
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Nonce       string `json:"nonce" binding:"required"`
		SignedNonce string `json:"signedNonce" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, err := h.auth.CompleteLogin(c.Request.Context(), req.Nonce, req.SignedNonce)
	if err != nil {
		switch err {
		case core.ErrChallengeNotFound, core.ErrChallengeExpired, core.ErrInvalidSignature:
			// One message for every auth failure; the client learns
			// nothing about which check rejected it.
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid nonce or signature"})
		default:
			h.log.WithError(err).Error("login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Logout revokes the presented bearer token.
func (h *Handlers) Logout(c *gin.Context) {
	token := c.GetString(ctxBearerToken)

	if err := h.registry.Revoke(c.Request.Context(), token, "logout"); err != nil {
		h.log.WithError(err).Error("logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated subject.
func (h *Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": c.GetString(ctxUserID)})
}

// SendMessage accepts an opaque encrypted blob for a recipient's mailbox.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipientId" binding:"required"`
		Ciphertext  string `json:"ciphertext" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	blob, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ciphertext must be base64"})
		return
	}

	msg, err := h.mailbox.Deliver(c.Request.Context(), req.RecipientID, c.GetString(ctxUserID), blob)
	if err != nil {
		h.log.WithError(err).Error("message delivery failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        msg.ID,
		"createdAt": msg.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Inbox returns the caller's messages, newest first.
func (h *Handlers) Inbox(c *gin.Context) {
	msgs, err := h.mailbox.Inbox(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.log.WithError(err).Error("inbox fetch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, gin.H{
			"id":         msg.ID,
			"senderId":   msg.SenderIDHash,
			"ciphertext": base64.StdEncoding.EncodeToString(msg.Ciphertext),
			"createdAt":  msg.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"messages": out})
}
