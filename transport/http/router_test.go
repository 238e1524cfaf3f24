package http

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermnet/hermnet/adapters/events"
	"github.com/hermnet/hermnet/adapters/store"
	"github.com/hermnet/hermnet/adapters/tokenizer"
	"github.com/hermnet/hermnet/internal/anonymize"
	"github.com/hermnet/hermnet/service"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	router *gin.Engine
	clock  *fakeClock
	store  *store.MemoryStore
}

func newFixture(t *testing.T, rateMax int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &fakeClock{now: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemoryStore()

	log := logrus.New()
	log.SetOutput(io.Discard)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tk := tokenizer.NewJWTTokenizer(key, clock)

	publisher := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	eventPub := events.NewWatermillPublisher(publisher)

	auth := service.NewAuthService(mem, mem, tk, eventPub, clock, log, 30*time.Second, 15*time.Minute)
	registry := service.NewRevocationRegistry(mem, tk, eventPub, clock, log)
	limiter := service.NewRateLimiter(mem, clock, log, time.Minute, rateMax)
	users := service.NewUserService(mem, clock, log)
	mailbox := service.NewMailboxService(mem, clock, log)

	handlers := NewHandlers(users, auth, registry, mailbox, log)
	router := SetupRouter(RouterDeps{
		Anonymizer: anonymize.New("test-secret"),
		Limiter:    limiter,
		Tokenizer:  tk,
		Registry:   registry,
		Handlers:   handlers,
		Clock:      clock,
		Log:        log,
	})

	return &fixture{router: router, clock: clock, store: mem}
}

func (f *fixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func newIdentity(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func registerAndLogin(t *testing.T, f *fixture, id string) (ed25519.PrivateKey, string) {
	t.Helper()
	priv, pubPEM := newIdentity(t)

	rr := f.do(t, http.MethodPost, "/auth/register", gin.H{"id": id, "publicKey": pubPEM}, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodPost, "/auth/challenge", gin.H{"userId": id}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	nonce := decode(t, rr)["nonce"].(string)

	signed := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(nonce)))
	rr = f.do(t, http.MethodPost, "/auth/login", gin.H{"nonce": nonce, "signedNonce": signed}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	return priv, decode(t, rr)["token"].(string)
}

func TestRegisterChallengeLoginFlow(t *testing.T) {
	f := newFixture(t, 1000)
	priv, pubPEM := newIdentity(t)

	rr := f.do(t, http.MethodPost, "/auth/register", gin.H{"id": "alice", "publicKey": pubPEM}, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "alice", decode(t, rr)["id"])

	rr = f.do(t, http.MethodPost, "/auth/register", gin.H{"id": "alice", "publicKey": pubPEM}, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(t, http.MethodPost, "/auth/challenge", gin.H{"userId": "nobody"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/auth/challenge", gin.H{"userId": "alice"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	nonce := decode(t, rr)["nonce"].(string)
	require.NotEmpty(t, nonce)

	// Wrong signature: rejected with the generic message.
	rr = f.do(t, http.MethodPost, "/auth/login", gin.H{"nonce": nonce, "signedNonce": base64.StdEncoding.EncodeToString([]byte("junk"))}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid nonce or signature", decode(t, rr)["error"])

	// Right signature: token issued.
	signed := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(nonce)))
	rr = f.do(t, http.MethodPost, "/auth/login", gin.H{"nonce": nonce, "signedNonce": signed}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	token := decode(t, rr)["token"].(string)
	require.NotEmpty(t, token)

	// Replay: the nonce is gone, same generic message.
	rr = f.do(t, http.MethodPost, "/auth/login", gin.H{"nonce": nonce, "signedNonce": signed}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", decode(t, rr)["id"])
}

func TestBearerRequired(t *testing.T) {
	f := newFixture(t, 1000)

	rr := f.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/me", nil, "garbage.token.here")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExpiredToken(t *testing.T) {
	f := newFixture(t, 1000)
	_, token := registerAndLogin(t, f, "alice")

	f.clock.Advance(16 * time.Minute)

	rr := f.do(t, http.MethodGet, "/api/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Token expired", decode(t, rr)["error"])
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t, 1000)
	_, token := registerAndLogin(t, f, "alice")

	rr := f.do(t, http.MethodPost, "/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Token revoked", decode(t, rr)["error"])
}

func TestExpiredChallenge(t *testing.T) {
	f := newFixture(t, 1000)
	priv, pubPEM := newIdentity(t)

	rr := f.do(t, http.MethodPost, "/auth/register", gin.H{"id": "alice", "publicKey": pubPEM}, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodPost, "/auth/challenge", gin.H{"userId": "alice"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	nonce := decode(t, rr)["nonce"].(string)

	f.clock.Advance(31 * time.Second)

	signed := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(nonce)))
	rr = f.do(t, http.MethodPost, "/auth/login", gin.H{"nonce": nonce, "signedNonce": signed}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid nonce or signature", decode(t, rr)["error"])
}

func TestRateLimitShortCircuits(t *testing.T) {
	f := newFixture(t, 3)

	for i := 0; i < 3; i++ {
		rr := f.do(t, http.MethodGet, "/api/me", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "under the limit the auth layer answers")
	}

	rr := f.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too Many Requests", decode(t, rr)["message"])

	// A fresh window admits again.
	f.clock.Advance(61 * time.Second)
	rr = f.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMailboxRoundTrip(t *testing.T) {
	f := newFixture(t, 1000)
	_, aliceToken := registerAndLogin(t, f, "alice")
	_, bobToken := registerAndLogin(t, f, "bob")

	blob := base64.StdEncoding.EncodeToString([]byte("opaque encrypted payload"))
	rr := f.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "bob", "ciphertext": blob}, aliceToken)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/messages", gin.H{"recipientId": "bob", "ciphertext": "%%%not-base64"}, aliceToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/messages", nil, bobToken)
	require.Equal(t, http.StatusOK, rr.Code)
	msgs := decode(t, rr)["messages"].([]any)
	require.Len(t, msgs, 1)
	msg := msgs[0].(map[string]any)
	assert.Equal(t, "alice", msg["senderId"])
	assert.Equal(t, blob, msg["ciphertext"])

	// Alice's own inbox is empty.
	rr = f.do(t, http.MethodGet, "/api/messages", nil, aliceToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["messages"].([]any), 0)
}
