package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

func intPtr(v int) *int { return &v }

func seedSearchRecords(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	records := []models.MemoryRecord{
		{
			Key:         "retry-backoff-pattern",
			Category:    models.CategoryPatterns,
			Data:        map[string]any{"detail": "exponential retry backoff for flaky calls"},
			AgentOrigin: models.AgentDeveloper,
		},
		{
			Key:         "database-migration-decision",
			Category:    models.CategoryDecisions,
			Data:        map[string]any{"detail": "forward-only migrations, retry on busy"},
			AgentOrigin: models.AgentDeveloper,
		},
		{
			Key:             "vector-a",
			Category:        models.CategoryPatterns,
			Data:            map[string]any{"detail": "embedding sample"},
			AgentOrigin:     models.AgentDeveloper,
			EmbeddingVector: []float64{1, 0, 0},
		},
		{
			Key:             "vector-b",
			Category:        models.CategoryPatterns,
			Data:            map[string]any{"detail": "embedding sample"},
			AgentOrigin:     models.AgentDeveloper,
			EmbeddingVector: []float64{0.9, 0.1, 0},
		},
		{
			Key:         "private-note",
			Category:    models.CategoryPatterns,
			Data:        map[string]any{"detail": "retry secrets"},
			AgentOrigin: models.AgentBrain,
		},
	}
	for _, record := range records {
		_, err := repo.Put(ctx, record)
		require.NoError(t, err)
	}
}

func TestSearchSimilar_TextModeRanksByMatchCount(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)

	results, err := repo.SearchSimilar(context.Background(), SearchQuery{Text: "retry"}, models.AgentDeveloper)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The pattern record matches "retry" in both key and data; the decision
	// record matches once.
	assert.Equal(t, "retry-backoff-pattern", results[0].Key)
	assert.Equal(t, "database-migration-decision", results[1].Key)
}

func TestSearchSimilar_TextModeIsCaseInsensitive(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)

	results, err := repo.SearchSimilar(context.Background(), SearchQuery{Text: "RETRY"}, models.AgentDeveloper)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchSimilar_FiltersByReadPermission(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)

	// The brain-owned record also matches "retry" but developer cannot read it.
	results, err := repo.SearchSimilar(context.Background(), SearchQuery{Text: "retry"}, models.AgentDeveloper)
	require.NoError(t, err)
	for _, record := range results {
		assert.NotEqual(t, "private-note", record.Key)
	}

	results, err = repo.SearchSimilar(context.Background(), SearchQuery{Text: "retry"}, models.AgentBrain)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "private-note", results[0].Key)
}

func TestSearchSimilar_CategoryFilter(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)

	results, err := repo.SearchSimilar(context.Background(),
		SearchQuery{Text: "retry", Category: models.CategoryDecisions}, models.AgentDeveloper)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "database-migration-decision", results[0].Key)
}

func TestSearchSimilar_VectorModeCosineRanking(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)

	results, err := repo.SearchSimilar(context.Background(),
		SearchQuery{Vector: []float64{1, 0, 0}}, models.AgentDeveloper)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "vector-a", results[0].Key)
	assert.Equal(t, "vector-b", results[1].Key)
}

func TestSearchSimilar_VectorModeSkipsMismatchedLengths(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)

	results, err := repo.SearchSimilar(context.Background(),
		SearchQuery{Vector: []float64{1, 0}}, models.AgentDeveloper)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSimilar_KSemantics(t *testing.T) {
	repo := newTestRepository(t)
	seedSearchRecords(t, repo)
	ctx := context.Background()

	results, err := repo.SearchSimilar(ctx, SearchQuery{Text: "retry", K: intPtr(1)}, models.AgentDeveloper)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = repo.SearchSimilar(ctx, SearchQuery{Text: "retry", K: intPtr(0)}, models.AgentDeveloper)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = repo.SearchSimilar(ctx, SearchQuery{Text: "retry", K: intPtr(-1)}, models.AgentDeveloper)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSearchSimilar_EmptyQueryRejected(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.SearchSimilar(context.Background(), SearchQuery{}, models.AgentDeveloper)
	assert.ErrorIs(t, err, ErrValidation)
}
