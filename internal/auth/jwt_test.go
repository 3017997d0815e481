package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("admin", RoleAdmin, "labtrack", "test-key", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	claims, err := Parse(pair.AccessToken, "test-key", "labtrack")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = Parse(pair.AccessToken, "wrong-key", "labtrack")
	assert.Error(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "other-issuer")
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}
