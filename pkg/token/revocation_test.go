// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record is a test helper for building ledger entries around a token
// string that is not a real JWT.
func record(token string, expiresAt time.Time) Record {
	return Record{
		Token:     token,
		UserID:    "user-1",
		Kind:      KindAccess,
		RevokedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func TestNewRecord_DerivesExpiryFromToken(t *testing.T) {
	exp := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any-secret"))
	require.NoError(t, err)

	rec := NewRecord(signed, "user-1", KindAccess, 168*time.Hour)
	assert.Equal(t, signed, rec.Token)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, KindAccess, rec.Kind)
	assert.WithinDuration(t, time.Now().UTC(), rec.RevokedAt, time.Minute)
	assert.WithinDuration(t, exp, rec.ExpiresAt, time.Second)
}

func TestNewRecord_UnreadableTokenGetsFallbackTTL(t *testing.T) {
	rec := NewRecord("garbage", "user-1", KindRefresh, time.Hour)
	assert.Equal(t, KindRefresh, rec.Kind)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), rec.ExpiresAt, time.Minute)
}

func TestMemoryRevocationStore_RevokeAndCheck(t *testing.T) {
	store := NewMemoryRevocationStore(0)
	defer store.Close()
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, record("token-1", time.Now().UTC().Add(time.Hour))))

	revoked, err = store.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryRevocationStore_ExpiredEntryReadsAsNotRevoked(t *testing.T) {
	store := NewMemoryRevocationStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, record("token-1", time.Now().UTC().Add(-time.Second))))

	revoked, err := store.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryRevocationStore_Cleanup(t *testing.T) {
	store := NewMemoryRevocationStore(0)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Revoke(ctx, record("live", now.Add(time.Hour))))
	require.NoError(t, store.Revoke(ctx, record("dead-1", now.Add(-time.Second))))
	require.NoError(t, store.Revoke(ctx, record("dead-2", now.Add(-time.Minute))))

	assert.Equal(t, 3, store.Count())
	assert.Equal(t, 2, store.Cleanup())
	assert.Equal(t, 1, store.Count())
}

func TestMemoryRevocationStore_BackgroundSweep(t *testing.T) {
	store := NewMemoryRevocationStore(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, record("dead", time.Now().UTC().Add(-time.Second))))

	assert.Eventually(t, func() bool {
		return store.Count() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryRevocationStore_CloseIsIdempotent(t *testing.T) {
	store := NewMemoryRevocationStore(time.Minute)
	store.Close()
	store.Close()
}
