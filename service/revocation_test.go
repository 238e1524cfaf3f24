package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermnet/hermnet/adapters/store"
	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/ports"
)

func newRegistryFixture(t *testing.T) (*RevocationRegistry, ports.Tokenizer, *store.MemoryStore, *fakeClock, *recordingPublisher) {
	t.Helper()
	clock := newFakeClock()
	mem := store.NewMemoryStore()
	tk := testTokenizer(t, clock)
	pub := &recordingPublisher{}
	registry := NewRevocationRegistry(mem, tk, pub, clock, testLogger())
	return registry, tk, mem, clock, pub
}

func issueToken(t *testing.T, tk ports.Tokenizer, clock *fakeClock, subject string, lifetime time.Duration) string {
	t.Helper()
	token, err := tk.SessionToToken(&core.Session{
		ID:        "jti-" + subject,
		Subject:   subject,
		IssuedAt:  clock.Now(),
		ExpiresAt: clock.Now().Add(lifetime),
	})
	require.NoError(t, err)
	return token
}

func TestRevokeThenIsRevoked(t *testing.T) {
	registry, tk, _, clock, pub := newRegistryFixture(t)
	ctx := context.Background()
	token := issueToken(t, tk, clock, "alice", 15*time.Minute)

	revoked, err := registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked, "fresh token is not revoked")

	require.NoError(t, registry.Revoke(ctx, token, "logout"))
	assert.Len(t, pub.revocations, 1)

	revoked, err = registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationEntryDiesWithToken(t *testing.T) {
	registry, tk, mem, clock, _ := newRegistryFixture(t)
	ctx := context.Background()
	token := issueToken(t, tk, clock, "alice", 15*time.Minute)

	require.NoError(t, registry.Revoke(ctx, token, "logout"))

	// Past the token's own expiry the entry reports not-revoked even
	// though the sweeper has not removed it yet.
	clock.Advance(16 * time.Minute)

	revoked, err := registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)

	_, found, err := mem.FindRevocation(ctx, TokenFingerprint(token))
	require.NoError(t, err)
	assert.True(t, found, "entry still present, only ignored")
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	registry, tk, mem, clock, _ := newRegistryFixture(t)
	ctx := context.Background()
	token := issueToken(t, tk, clock, "alice", time.Minute)

	clock.Advance(2 * time.Minute)

	require.NoError(t, registry.Revoke(ctx, token, "logout"))

	_, found, err := mem.FindRevocation(ctx, TokenFingerprint(token))
	require.NoError(t, err)
	assert.False(t, found, "no entry recorded for an already expired token")
}

func TestRevokeGarbageToken(t *testing.T) {
	registry, _, _, _, _ := newRegistryFixture(t)

	err := registry.Revoke(context.Background(), "not.a.token", "logout")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestTokenFingerprintNeverStoresRawToken(t *testing.T) {
	fp := TokenFingerprint("some.jwt.token")
	assert.Len(t, fp, 64)
	assert.NotContains(t, fp, "some")
}
