package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/kudos-portal/models"
)

func TestStateConstructors(t *testing.T) {
	var zero State
	assert.False(t, zero.IsAuthenticated())
	assert.Equal(t, StatusAnonymous, zero.Status)

	assert.True(t, Loading().IsLoading())
	assert.False(t, Loading().IsAuthenticated())

	t.Run("nil identity is anonymous", func(t *testing.T) {
		assert.Equal(t, Anonymous(), Authenticated(nil))
	})

	t.Run("authenticated carries identity", func(t *testing.T) {
		id := &models.Identity{ID: "u1", Role: models.RoleLead}
		s := Authenticated(id)
		assert.True(t, s.IsAuthenticated())
		role, ok := s.Role()
		assert.True(t, ok)
		assert.Equal(t, models.RoleLead, role)
	})
}

func TestState_HasRole(t *testing.T) {
	admin := Authenticated(&models.Identity{ID: "a", Role: models.RoleAdmin})

	assert.True(t, admin.HasRole(models.RoleAdmin))
	assert.True(t, admin.HasRole(models.RoleLead, models.RoleAdmin))
	assert.False(t, admin.HasRole(models.RoleLead))
	assert.False(t, admin.HasRole())

	assert.False(t, Loading().HasRole(models.RoleAdmin))
	assert.False(t, Anonymous().HasRole(models.RoleAdmin))
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(Authenticated(&models.Identity{ID: "u1"}))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"authenticated"`)

	data, err = json.Marshal(Anonymous())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"anonymous"}`, string(data))
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Anonymous(), FromContext(ctx))
	assert.Nil(t, IdentityFromContext(ctx))

	id := &models.Identity{ID: "u1"}
	ctx = WithState(ctx, Authenticated(id))
	assert.Same(t, id, IdentityFromContext(ctx))

	t.Run("loading state has no identity", func(t *testing.T) {
		assert.Nil(t, IdentityFromContext(WithState(context.Background(), Loading())))
	})
}

func TestTokenContext(t *testing.T) {
	_, ok := TokenFromContext(context.Background())
	assert.False(t, ok)

	_, ok = TokenFromContext(WithToken(context.Background(), ""))
	assert.False(t, ok)

	token, ok := TokenFromContext(WithToken(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", token)
}

func TestClientContext(t *testing.T) {
	assert.Equal(t, ClientInfo{}, ClientFromContext(context.Background()))

	ctx := WithClient(context.Background(), ClientInfo{IPAddress: "10.0.0.1", UserAgent: "curl"})
	assert.Equal(t, "10.0.0.1", ClientFromContext(ctx).IPAddress)
	assert.Equal(t, "curl", ClientFromContext(ctx).UserAgent)
}
