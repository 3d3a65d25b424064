package registry

import (
	"context"
	"sync"
	"testing"

	"agentregistry/internal/models"
	"agentregistry/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.RegistryEvent
}

func (s *recordingSink) ProcessEvent(ctx context.Context, event *models.RegistryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
}

func (s *recordingSink) last() models.RegistryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestStore(t *testing.T) (*Store, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return NewStore(storage.NewMemoryRepository(), sink), sink
}

func mustCreate(t *testing.T, store *Store, caller, pointer string) uint64 {
	t.Helper()
	id, err := store.Create(context.Background(), caller, pointer)
	require.NoError(t, err)
	return id
}

func TestCreate_AssignsNextID(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	for i := 0; i < 5; i++ {
		before, err := store.NextID(ctx)
		require.NoError(t, err)

		id := mustCreate(t, store, "alice", "https://agents.example/a.json")
		assert.Equal(t, before, id)

		after, err := store.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, before+1, after)
	}

	event := sink.last()
	assert.Equal(t, models.EventCreated, event.Type)
	assert.Equal(t, uint64(5), event.IdentityID)
	assert.Equal(t, "alice", event.Owner)
	assert.Equal(t, "https://agents.example/a.json", event.Pointer)
}

func TestCreate_EmptyPointerRejected(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	_, err := store.Create(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrValidation)

	next, err := store.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
	assert.Equal(t, 0, sink.count())
}

func TestCreate_ConcurrentIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Create(ctx, "alice", "ipfs://x")
			if err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	next, err := store.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(n+1), next)
}

func TestSetPointer_Authorization(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  string
		allowed bool
	}{
		{"owner", "alice", true},
		{"single approved", "bob", true},
		{"operator for all", "ops", true},
		{"stranger", "mallory", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			id := mustCreate(t, store, "alice", "ipfs://a")
			require.NoError(t, store.Approve(ctx, "alice", id, "bob"))
			require.NoError(t, store.SetApprovalForAll(ctx, "alice", "ops", true))

			err := store.SetPointer(ctx, tt.caller, id, "ipfs://new")

			identity, getErr := store.Get(ctx, id)
			require.NoError(t, getErr)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, "ipfs://new", identity.Pointer)
			} else {
				assert.ErrorIs(t, err, ErrPermissionDenied)
				assert.Equal(t, "ipfs://a", identity.Pointer)
			}
		})
	}
}

func TestSetPointer_EmptyRejected(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")

	err := store.SetPointer(ctx, "alice", id, "")
	assert.ErrorIs(t, err, ErrValidation)

	identity, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://a", identity.Pointer)
}

func TestSetPointer_UnknownIdentity(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.SetPointer(context.Background(), "alice", 42, "ipfs://x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetMetadata_ApprovedIsNotEnough(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")
	require.NoError(t, store.Approve(ctx, "alice", id, "bob"))

	// bob can move the pointer...
	require.NoError(t, store.SetPointer(ctx, "bob", id, "ipfs://b"))

	// ...but not write metadata
	err := store.SetMetadata(ctx, "bob", id, "agentWallet", []byte("GBOB"))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	value, err := store.GetMetadata(ctx, id, "agentWallet")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestSetMetadata_OwnerAndOperator(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")
	require.NoError(t, store.SetApprovalForAll(ctx, "alice", "ops", true))

	require.NoError(t, store.SetMetadata(ctx, "alice", id, "name", []byte("first")))
	require.NoError(t, store.SetMetadata(ctx, "ops", id, "name", []byte("second")))

	value, err := store.GetMetadata(ctx, id, "name")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)

	event := sink.last()
	assert.Equal(t, models.EventMetadataSet, event.Type)
	assert.Equal(t, id, event.IdentityID)
	assert.Equal(t, "name", event.Key)
	assert.Equal(t, []byte("second"), event.Value)

	err = store.SetMetadata(ctx, "mallory", id, "name", []byte("evil"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSetMetadata_EmptyKeyRejected(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")

	err := store.SetMetadata(ctx, "alice", id, "", []byte("v"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetMetadata_UnsetKeyIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")

	for _, key := range []string{"missing", "agentWallet", "x"} {
		value, err := store.GetMetadata(ctx, id, key)
		require.NoError(t, err)
		assert.NotNil(t, value)
		assert.Empty(t, value)
	}

	_, err := store.GetMetadata(ctx, id+1, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupMetadata_EmptyValueIsSet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")

	require.NoError(t, store.SetMetadata(ctx, "alice", id, "note", []byte{}))

	tests := []struct {
		key   string
		value []byte
		set   bool
	}{
		{"note", []byte{}, true},
		{"missing", []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			value, set, err := store.LookupMetadata(ctx, id, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, value)
			assert.Equal(t, tt.set, set)
		})
	}

	_, _, err := store.LookupMetadata(ctx, id+1, "note")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransferOwnership_RevokesPreviousOwner(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")
	require.NoError(t, store.Approve(ctx, "alice", id, "bob"))

	require.NoError(t, store.TransferOwnership(ctx, "alice", id, "xavier"))

	event := sink.last()
	assert.Equal(t, models.EventTransferred, event.Type)
	assert.Equal(t, "alice", event.Previous)
	assert.Equal(t, "xavier", event.Owner)

	owner, err := store.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "xavier", owner)

	approved, err := store.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, approved)

	assert.ErrorIs(t, store.SetPointer(ctx, "alice", id, "ipfs://c"), ErrPermissionDenied)
	assert.ErrorIs(t, store.SetMetadata(ctx, "alice", id, "k", []byte("v")), ErrPermissionDenied)
	assert.ErrorIs(t, store.SetPointer(ctx, "bob", id, "ipfs://c"), ErrPermissionDenied)

	require.NoError(t, store.SetPointer(ctx, "xavier", id, "ipfs://c"))
	require.NoError(t, store.SetMetadata(ctx, "xavier", id, "k", []byte("v")))
}

func TestTransferOwnership_MetadataIsInherited(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")
	require.NoError(t, store.SetMetadata(ctx, "alice", id, "agentWallet", []byte("GALICE")))

	require.NoError(t, store.TransferOwnership(ctx, "alice", id, "xavier"))

	value, err := store.GetMetadata(ctx, id, "agentWallet")
	require.NoError(t, err)
	assert.Equal(t, []byte("GALICE"), value)
}

func TestTransferOwnership_OperatorGrantsAreKeyedByOwner(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	first := mustCreate(t, store, "alice", "ipfs://a")
	second := mustCreate(t, store, "alice", "ipfs://b")
	require.NoError(t, store.SetApprovalForAll(ctx, "alice", "ops", true))

	// The operator may transfer on alice's behalf
	require.NoError(t, store.TransferOwnership(ctx, "ops", first, "xavier"))

	// It keeps its rights over alice's remaining identity, loses them over the transferred one
	require.NoError(t, store.SetPointer(ctx, "ops", second, "ipfs://b2"))
	assert.ErrorIs(t, store.SetPointer(ctx, "ops", first, "ipfs://a2"), ErrPermissionDenied)

	ok, err := store.IsApprovedForAll(ctx, "alice", "ops")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransferOwnership_Unauthorized(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")

	assert.ErrorIs(t, store.TransferOwnership(ctx, "mallory", id, "mallory"), ErrPermissionDenied)
	assert.ErrorIs(t, store.TransferOwnership(ctx, "alice", id, ""), ErrValidation)

	owner, err := store.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
}

func TestApprove_Rules(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustCreate(t, store, "alice", "ipfs://a")
	require.NoError(t, store.Approve(ctx, "alice", id, "bob"))

	// The approved principal cannot re-delegate
	assert.ErrorIs(t, store.Approve(ctx, "bob", id, "carol"), ErrPermissionDenied)
	assert.ErrorIs(t, store.Approve(ctx, "alice", id, "alice"), ErrValidation)

	// Clearing
	require.NoError(t, store.Approve(ctx, "alice", id, ""))
	approved, err := store.GetApproved(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, approved)
	assert.ErrorIs(t, store.SetPointer(ctx, "bob", id, "ipfs://b"), ErrPermissionDenied)
}

func TestSetApprovalForAll_Validation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	assert.ErrorIs(t, store.SetApprovalForAll(ctx, "alice", "alice", true), ErrValidation)
	assert.ErrorIs(t, store.SetApprovalForAll(ctx, "alice", "", true), ErrValidation)

	require.NoError(t, store.SetApprovalForAll(ctx, "alice", "ops", true))
	require.NoError(t, store.SetApprovalForAll(ctx, "alice", "ops", false))
	ok, err := store.IsApprovedForAll(ctx, "alice", "ops")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScenario_CreateUpdateTransfer(t *testing.T) {
	ctx := context.Background()
	store, sink := newTestStore(t)

	id, err := store.Create(ctx, "original", "A")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	assert.ErrorIs(t, store.SetPointer(ctx, "original", 1, ""), ErrValidation)

	require.NoError(t, store.SetPointer(ctx, "original", 1, "B"))
	event := sink.last()
	assert.Equal(t, models.EventPointerUpdated, event.Type)
	assert.Equal(t, uint64(1), event.IdentityID)
	assert.Equal(t, "B", event.Pointer)

	require.NoError(t, store.TransferOwnership(ctx, "original", 1, "X"))

	assert.ErrorIs(t, store.SetPointer(ctx, "original", 1, "C"), ErrPermissionDenied)
	require.NoError(t, store.SetPointer(ctx, "X", 1, "C"))

	identity, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "C", identity.Pointer)
	assert.Equal(t, "X", identity.Owner)
}
