package account

import (
	"context"
	"testing"

	"provisioner/internal/sentinel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreInsertAndFind(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, Account{
		Email:           "a@ex.com",
		Password:        "placeholder",
		Name:            "Alice",
		ProfileImageURL: "/user.png",
		Role:            RoleAdmin,
		OAuthSub:        "abc-123",
	})
	require.NoError(t, err)
	require.NotNil(t, inserted)

	bySub, err := store.FindByOAuthSub(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "a@ex.com", bySub.Email)

	byEmail, err := store.FindByEmail(ctx, "a@ex.com")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", byEmail.OAuthSub)
}

func TestInMemoryStoreFindMissesReturnNotFound(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.FindByOAuthSub(ctx, "nope")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = store.FindByEmail(ctx, "nope@ex.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreRejectsDuplicates(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.Insert(ctx, Account{Email: "a@ex.com", OAuthSub: "abc-123", Role: RoleUser})
	require.NoError(t, err)

	t.Run("same oauth_sub", func(t *testing.T) {
		_, err := store.Insert(ctx, Account{Email: "b@ex.com", OAuthSub: "abc-123", Role: RoleUser})
		assert.ErrorIs(t, err, sentinel.ErrAlreadyExists)
	})

	t.Run("same email different casing", func(t *testing.T) {
		_, err := store.Insert(ctx, Account{Email: "A@Ex.com", OAuthSub: "other", Role: RoleUser})
		assert.ErrorIs(t, err, sentinel.ErrAlreadyExists)
	})
}

func TestInMemoryStoreFindByEmailIsCaseInsensitive(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	_, err := store.Insert(ctx, Account{Email: "a@ex.com", OAuthSub: "abc-123", Role: RoleUser})
	require.NoError(t, err)

	found, err := store.FindByEmail(ctx, "A@EX.COM")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", found.OAuthSub)
}
