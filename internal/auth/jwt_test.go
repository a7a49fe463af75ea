package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestGenerateAndValidateActorJWT(t *testing.T) {
	token, exp, err := GenerateActorJWT("student-42", []Role{RoleStudent}, testSecret, 15*time.Minute)
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := ValidateActorJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "student-42", claims.ActorID())
	assert.True(t, claims.HasRole(RoleStudent))
	assert.False(t, claims.HasRole(RoleService))
	assert.False(t, claims.Trusted())
}

func TestValidateActorJWT_WrongSecret(t *testing.T) {
	token, _, err := GenerateActorJWT("student-42", []Role{RoleStudent}, testSecret, 15*time.Minute)
	require.NoError(t, err)

	_, err = ValidateActorJWT(token, []byte("a-different-secret"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateActorJWT_Expired(t *testing.T) {
	token, _, err := GenerateActorJWT("student-42", []Role{RoleStudent}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateActorJWT(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateActorJWT_Garbage(t *testing.T) {
	_, err := ValidateActorJWT("not-a-token", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestServiceRoleIsTrusted(t *testing.T) {
	token, _, err := GenerateActorJWT("indexer-1", []Role{RoleService}, testSecret, time.Minute)
	require.NoError(t, err)

	claims, err := ValidateActorJWT(token, testSecret)
	require.NoError(t, err)
	assert.True(t, claims.Trusted())
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RoleService.HasPermission(RoleStudent))
	assert.True(t, RoleService.HasPermission(RoleInstructor))
	assert.True(t, RoleInstructor.HasPermission(RoleStudent))
	assert.False(t, RoleStudent.HasPermission(RoleInstructor))
	assert.False(t, RoleStudent.Trusted())
	assert.True(t, RoleService.Trusted())

	assert.True(t, RoleStudent.IsValid())
	assert.False(t, Role("admin").IsValid())
}

func TestServiceKeyStore(t *testing.T) {
	hash, err := HashServiceKey("super-secret-key")
	require.NoError(t, err)
	assert.True(t, CompareServiceKey(hash, "super-secret-key"))
	assert.False(t, CompareServiceKey(hash, "wrong-key"))

	revokedHash, err := HashServiceKey("revoked-key")
	require.NoError(t, err)

	store := NewInMemoryServiceKeyStore([]*ServiceAccount{
		{ID: "svc-1", Name: "indexer", KeyHash: hash},
		{ID: "svc-2", Name: "retired", KeyHash: revokedHash, Revoked: true},
	})

	ctx := context.Background()

	account, err := store.Lookup(ctx, "super-secret-key")
	require.NoError(t, err)
	assert.Equal(t, "svc-1", account.ID)

	_, err = store.Lookup(ctx, "wrong-key")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = store.Lookup(ctx, "revoked-key")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
