package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewRepository(store, nil, nil)
}

func sampleRecord(key string, origin models.AgentID) models.MemoryRecord {
	return models.MemoryRecord{
		Key:         key,
		Category:    models.CategorySolutions,
		Data:        map[string]any{"summary": "retry with backoff"},
		AgentOrigin: origin,
	}
}

func TestRepository_PutAssignsIDAndOwnerPermissions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("flaky-test-fix", models.AgentDeveloper))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.RecordID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, stored.CreatedAt, stored.UpdatedAt)

	perms, err := repo.Permissions(ctx, stored.RecordID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, models.AgentDeveloper, perms[0].AgentID)
	assert.True(t, perms[0].Read)
	assert.True(t, perms[0].Write)
	assert.True(t, perms[0].Delete)
}

func TestRepository_PutDuplicateID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := sampleRecord("dup", models.AgentDeveloper)
	record.RecordID = "fixed-id"
	_, err := repo.Put(ctx, record)
	require.NoError(t, err)

	_, err = repo.Put(ctx, record)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestRepository_PutValidation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*models.MemoryRecord)
	}{
		{"missing key", func(r *models.MemoryRecord) { r.Key = "" }},
		{"missing category", func(r *models.MemoryRecord) { r.Category = "" }},
		{"missing origin", func(r *models.MemoryRecord) { r.AgentOrigin = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := sampleRecord("valid-key", models.AgentDeveloper)
			tc.mutate(&record)
			_, err := repo.Put(ctx, record)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRepository_GetRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	original := sampleRecord("round-trip", models.AgentQA)
	original.EmbeddingVector = []float64{0.1, 0.2, 0.3}
	original.Metadata.Tags = []string{"testing", "ci"}
	stored, err := repo.Put(ctx, original)
	require.NoError(t, err)

	got, err := repo.Get(ctx, stored.RecordID, models.AgentQA)
	require.NoError(t, err)
	assert.Equal(t, stored.RecordID, got.RecordID)
	assert.Equal(t, "round-trip", got.Key)
	assert.Equal(t, map[string]any{"summary": "retry with backoff"}, got.Data)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.EmbeddingVector)
	assert.Equal(t, []string{"testing", "ci"}, got.Metadata.Tags)
}

func TestRepository_GetPermissionGate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("private", models.AgentDeveloper))
	require.NoError(t, err)

	_, err = repo.Get(ctx, stored.RecordID, models.AgentQA)
	assert.ErrorIs(t, err, ErrForbidden)

	grant := models.MemoryPermission{Read: true}
	require.NoError(t, repo.GrantPermission(ctx, stored.RecordID, models.AgentQA, grant, models.AgentDeveloper))

	got, err := repo.Get(ctx, stored.RecordID, models.AgentQA)
	require.NoError(t, err)
	assert.Equal(t, stored.RecordID, got.RecordID)

	// Read permission does not imply write.
	_, err = repo.Update(ctx, stored.RecordID, UpdatePatch{Data: map[string]any{"x": "y"}}, models.AgentQA)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRepository_GetNotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Get(context.Background(), "no-such-id", models.AgentDeveloper)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateMutableFieldsOnly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("to-update", models.AgentDeveloper))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	updated, err := repo.Update(ctx, stored.RecordID, UpdatePatch{
		Data:            map[string]any{"summary": "revised"},
		EmbeddingVector: []float64{1, 0},
	}, models.AgentDeveloper)
	require.NoError(t, err)

	assert.Equal(t, stored.RecordID, updated.RecordID)
	assert.Equal(t, stored.AgentOrigin, updated.AgentOrigin)
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(stored.UpdatedAt))
	assert.Equal(t, map[string]any{"summary": "revised"}, updated.Data)
	assert.Equal(t, []float64{1, 0}, updated.EmbeddingVector)
}

func TestRepository_DeleteCascadesPermissions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("to-delete", models.AgentDeveloper))
	require.NoError(t, err)
	require.NoError(t, repo.GrantPermission(ctx, stored.RecordID, models.AgentQA,
		models.MemoryPermission{Read: true}, models.AgentDeveloper))

	require.NoError(t, repo.Delete(ctx, stored.RecordID, models.AgentDeveloper))

	_, err = repo.Get(ctx, stored.RecordID, models.AgentDeveloper)
	assert.ErrorIs(t, err, ErrNotFound)

	perms, err := repo.Permissions(ctx, stored.RecordID)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestRepository_DeleteRequiresPermission(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("guarded", models.AgentDeveloper))
	require.NoError(t, err)

	err = repo.Delete(ctx, stored.RecordID, models.AgentQA)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRepository_GrantRequiresHeldFlags(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("grants", models.AgentDeveloper))
	require.NoError(t, err)
	require.NoError(t, repo.GrantPermission(ctx, stored.RecordID, models.AgentQA,
		models.MemoryPermission{Read: true}, models.AgentDeveloper))

	// qa holds read only, so it cannot grant write.
	err = repo.GrantPermission(ctx, stored.RecordID, models.AgentDocs,
		models.MemoryPermission{Write: true}, models.AgentQA)
	assert.ErrorIs(t, err, ErrForbidden)

	// qa can pass along the flag it holds.
	require.NoError(t, repo.GrantPermission(ctx, stored.RecordID, models.AgentDocs,
		models.MemoryPermission{Read: true}, models.AgentQA))
	_, err = repo.Get(ctx, stored.RecordID, models.AgentDocs)
	assert.NoError(t, err)
}

func TestRepository_CachedGetStillEnforcesPermissions(t *testing.T) {
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := NewCache(8, time.Minute)
	repo := NewRepository(store, nil, cache)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("cached-private", models.AgentDeveloper))
	require.NoError(t, err)

	// Warm the cache through the owner, then read as an agent without a
	// grant. The permission gate runs before any cache hit.
	_, err = repo.Get(ctx, stored.RecordID, models.AgentDeveloper)
	require.NoError(t, err)

	_, err = repo.Get(ctx, stored.RecordID, models.AgentQA)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRepository_CacheInvalidatedOnUpdate(t *testing.T) {
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cache := NewCache(8, time.Minute)
	repo := NewRepository(store, nil, cache)
	ctx := context.Background()

	stored, err := repo.Put(ctx, sampleRecord("cached", models.AgentDeveloper))
	require.NoError(t, err)

	got, err := repo.Get(ctx, stored.RecordID, models.AgentDeveloper)
	require.NoError(t, err)
	assert.Equal(t, "retry with backoff", got.Data["summary"])

	_, err = repo.Update(ctx, stored.RecordID, UpdatePatch{Data: map[string]any{"summary": "fresh"}}, models.AgentDeveloper)
	require.NoError(t, err)

	got, err = repo.Get(ctx, stored.RecordID, models.AgentDeveloper)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Data["summary"])
}
