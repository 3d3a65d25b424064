package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"agentregistry/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepositoryContract exercises behaviour every Repository implementation must share
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ids are sequential from the counter", func(t *testing.T) {
		repo := newRepo(t)

		next, err := repo.NextIdentityID(ctx)
		require.NoError(t, err)

		first, err := repo.CreateIdentity(ctx, "alice", "ipfs://a", at)
		require.NoError(t, err)
		assert.Equal(t, next, first.ID)

		second, err := repo.CreateIdentity(ctx, "alice", "ipfs://b", at)
		require.NoError(t, err)
		assert.Equal(t, first.ID+1, second.ID)

		after, err := repo.NextIdentityID(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID+1, after)
	})

	t.Run("missing identity is not found", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetIdentity(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)

		err = repo.UpdatePointer(ctx, 999999, "x", at)
		assert.ErrorIs(t, err, ErrNotFound)

		_, _, err = repo.GetMetadata(ctx, 999999, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("owner update clears approval", func(t *testing.T) {
		repo := newRepo(t)

		identity, err := repo.CreateIdentity(ctx, "alice", "ipfs://a", at)
		require.NoError(t, err)
		require.NoError(t, repo.SetApproved(ctx, identity.ID, "bob", at))

		got, err := repo.GetIdentity(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "bob", got.Approved)

		require.NoError(t, repo.UpdateOwner(ctx, identity.ID, "carol", at))
		got, err = repo.GetIdentity(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "carol", got.Owner)
		assert.Empty(t, got.Approved)
	})

	t.Run("metadata reads empty when unset and last write wins", func(t *testing.T) {
		repo := newRepo(t)

		identity, err := repo.CreateIdentity(ctx, "alice", "ipfs://a", at)
		require.NoError(t, err)

		value, set, err := repo.GetMetadata(ctx, identity.ID, "agentWallet")
		require.NoError(t, err)
		assert.False(t, set)
		assert.Empty(t, value)

		require.NoError(t, repo.SetMetadata(ctx, identity.ID, "agentWallet", []byte("one"), at))
		require.NoError(t, repo.SetMetadata(ctx, identity.ID, "agentWallet", []byte("two"), at))

		value, set, err = repo.GetMetadata(ctx, identity.ID, "agentWallet")
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, []byte("two"), value)
	})

	t.Run("operators toggle per owner", func(t *testing.T) {
		repo := newRepo(t)

		ok, err := repo.IsOperator(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.SetOperator(ctx, "alice", "ops", true))
		ok, err = repo.IsOperator(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.IsOperator(ctx, "bob", "ops")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.SetOperator(ctx, "alice", "ops", false))
		ok, err = repo.IsOperator(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("events are listed oldest first", func(t *testing.T) {
		repo := newRepo(t)

		identity, err := repo.CreateIdentity(ctx, "alice", "ipfs://a", at)
		require.NoError(t, err)

		require.NoError(t, repo.SaveEvent(ctx, &models.RegistryEvent{
			Type: models.EventCreated, IdentityID: identity.ID, Pointer: "ipfs://a", Owner: "alice", Timestamp: at,
		}))
		require.NoError(t, repo.SaveEvent(ctx, &models.RegistryEvent{
			Type: models.EventPointerUpdated, IdentityID: identity.ID, Pointer: "ipfs://b", Timestamp: at,
		}))

		events, err := repo.ListEvents(ctx, identity.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, models.EventCreated, events[0].Type)
		assert.Equal(t, "ipfs://b", events[1].Pointer)

		page, err := repo.ListEvents(ctx, identity.ID, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, models.EventPointerUpdated, page[0].Type)
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		return NewMemoryRepository()
	})
}

func TestMemoryRepository_FirstIDIsOne(t *testing.T) {
	repo := NewMemoryRepository()

	next, err := repo.NextIdentityID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	identity, err := repo.CreateIdentity(ctx, "alice", "ipfs://a", time.Now())
	require.NoError(t, err)
	identity.Pointer = "mutated"

	got, err := repo.GetIdentity(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://a", got.Pointer)
}

// TestPostgresRepository runs against a real database when TEST_DATABASE_URL is set.
// The schema is migrated once; every subtest shares the database.
func TestPostgresRepository(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Ping(ctx))

	runRepositoryContract(t, func(t *testing.T) Repository {
		return repo
	})
}
