package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hermnet/hermnet/adapters/tokenizer"
	"github.com/hermnet/hermnet/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)}
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

type recordingPublisher struct {
	mu          sync.Mutex
	logins      []string
	revocations []string
}

func (p *recordingPublisher) PublishLogin(ctx context.Context, userID, tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins = append(p.logins, userID)
	return nil
}

func (p *recordingPublisher) PublishRevocation(ctx context.Context, subject, fingerprint, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revocations = append(p.revocations, fingerprint)
	return nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testTokenizer(t *testing.T, clock ports.Clock) ports.Tokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return tokenizer.NewJWTTokenizer(key, clock)
}

// ed25519Identity returns a signing key plus the PEM public key a client
// would register with.
func ed25519Identity(t *testing.T) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pemBytes)
}

func signNonce(priv ed25519.PrivateKey, nonce string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(nonce)))
}
