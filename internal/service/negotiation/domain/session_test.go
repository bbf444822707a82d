package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T) *NegotiationSession {
	t.Helper()
	s, err := NewSession("sku-1", "user-1", 10000, testNow)
	require.NoError(t, err)
	return s
}

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession("", "user-1", 100, testNow)
	assert.Error(t, err)

	_, err = NewSession("sku-1", "", 100, testNow)
	assert.Error(t, err)

	_, err = NewSession("sku-1", "user-1", 0, testNow)
	assert.Error(t, err)

	s, err := NewSession("sku-1", "user-1", 100, testNow)
	require.NoError(t, err)
	assert.Len(t, s.ID, 26) // ULID
	assert.Equal(t, StatusPending, s.Status)
	assert.Zero(t, s.CurrentRound)
}

func TestAppendRoundKeepsCountInSync(t *testing.T) {
	s := newTestSession(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.AppendRound(Round{OfferedPrice: 100, Decision: DecisionCounter, Timestamp: testNow}))
		assert.Equal(t, i, s.CurrentRound)
		assert.Len(t, s.OfferHistory, i)
	}
}

func TestAppendRoundRejectedOnClosedSession(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Reject(testNow))

	err := s.AppendRound(Round{OfferedPrice: 100})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestAcceptMintsCredential(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.Accept("tok-1", 9500, time.Hour, testNow))

	assert.Equal(t, StatusAccepted, s.Status)
	assert.Equal(t, "tok-1", s.DiscountToken)
	assert.InDelta(t, 9500, s.FinalPrice, 1e-9)
	assert.Equal(t, testNow.Add(time.Hour), s.ExpiresAt)
	assert.True(t, s.IsTerminal())

	// 终态不允许再次迁移
	assert.ErrorIs(t, s.Accept("tok-2", 9000, time.Hour, testNow), ErrSessionClosed)
	assert.ErrorIs(t, s.Reject(testNow), ErrSessionClosed)
}

func TestAcceptGuards(t *testing.T) {
	s := newTestSession(t)
	assert.Error(t, s.Accept("", 9500, time.Hour, testNow))
	assert.Error(t, s.Accept("tok-1", 10001, time.Hour, testNow))
	assert.Equal(t, StatusPending, s.Status)
}

func TestExpireIfStale(t *testing.T) {
	t.Run("idle pending session expires", func(t *testing.T) {
		s := newTestSession(t)
		assert.False(t, s.ExpireIfStale(30*time.Minute, testNow.Add(10*time.Minute)))
		assert.True(t, s.ExpireIfStale(30*time.Minute, testNow.Add(31*time.Minute)))
		assert.Equal(t, StatusExpired, s.Status)
	})

	t.Run("unapplied credential expires after ttl", func(t *testing.T) {
		s := newTestSession(t)
		require.NoError(t, s.Accept("tok-1", 9500, time.Hour, testNow))
		assert.False(t, s.ExpireIfStale(0, testNow.Add(time.Hour)))
		assert.True(t, s.ExpireIfStale(0, testNow.Add(time.Hour+time.Second)))
		assert.Equal(t, StatusExpired, s.Status)
	})

	t.Run("applied credential never expires", func(t *testing.T) {
		s := newTestSession(t)
		require.NoError(t, s.Accept("tok-1", 9500, time.Hour, testNow))
		s.DiscountApplied = true
		assert.False(t, s.ExpireIfStale(0, testNow.Add(48*time.Hour)))
		assert.Equal(t, StatusAccepted, s.Status)
	})
}

func TestCredentialUsable(t *testing.T) {
	s := newTestSession(t)
	assert.ErrorIs(t, s.CredentialUsable(testNow), ErrInvalidToken)

	require.NoError(t, s.Accept("tok-1", 9500, time.Hour, testNow))
	assert.NoError(t, s.CredentialUsable(testNow))

	assert.ErrorIs(t, s.CredentialUsable(testNow.Add(2*time.Hour)), ErrExpired)

	s.DiscountApplied = true
	assert.ErrorIs(t, s.CredentialUsable(testNow), ErrAlreadyApplied)
}
