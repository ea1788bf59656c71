package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsm-core/incident-engine/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "incident-engine", 15)
	member := &domain.Member{ID: "m-1", OrgID: "org-1", Role: domain.MemberRoleTeamLead}

	token, exp, err := tm.GenerateToken(member)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "m-1", claims.MemberID)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, domain.MemberRoleTeamLead, claims.Role)
	assert.Equal(t, "incident-engine", claims.Issuer)
}

func TestParseTokenRejectsOtherIssuer(t *testing.T) {
	member := &domain.Member{ID: "m-1", OrgID: "org-1", Role: domain.MemberRoleAdmin}
	token, _, err := NewTokenManager("secret", "billing", 15).GenerateToken(member)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", "incident-engine", 15).ParseToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestParseTokenToleratesClockSkew(t *testing.T) {
	member := &domain.Member{ID: "m-1", OrgID: "org-1", Role: domain.MemberRoleAgent}
	issuer := NewTokenManager("secret", "incident-engine", 15)
	issuer.now = func() time.Time { return time.Now().Add(10 * time.Second) }
	token, _, err := issuer.GenerateToken(member)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", "incident-engine", 15).ParseToken(token)
	assert.NoError(t, err)
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	member := &domain.Member{ID: "m-1", OrgID: "org-1", Role: domain.MemberRoleAgent}

	token, _, err := NewTokenManager("other", "incident-engine", 15).GenerateToken(member)
	require.NoError(t, err)
	_, err = NewTokenManager("secret", "incident-engine", 15).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", "incident-engine", 1)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err = expired.GenerateToken(member)
	require.NoError(t, err)
	_, err = NewTokenManager("secret", "incident-engine", 1).ParseToken(token)
	assert.Error(t, err)

	token, _, err = NewTokenManager("secret", "incident-engine", 1).GenerateToken(&domain.Member{ID: "", OrgID: "org-1"})
	require.NoError(t, err)
	_, err = NewTokenManager("secret", "incident-engine", 1).ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher(4)
	hash, err := hasher.Hash("hunter2")
	require.NoError(t, err)
	require.NoError(t, hasher.Verify(hash, "hunter2"))
	assert.ErrorIs(t, hasher.Verify(hash, "hunter3"), ErrInvalidCredentials)
	assert.ErrorIs(t, hasher.Verify("", "hunter2"), ErrInvalidCredentials)

	_, err = hasher.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
