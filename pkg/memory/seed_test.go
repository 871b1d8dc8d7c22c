package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

const seedJSON = `[
  {
    "record_id": "seed-1",
    "key": "incident-playbook",
    "category": "solutions",
    "data": {"summary": "roll back, then bisect"},
    "agent_origin": "brain"
  },
  {
    "record_id": "seed-2",
    "key": "naming-convention",
    "category": "decisions",
    "data": {"summary": "kebab-case for step ids"},
    "agent_origin": "docs"
  }
]`

func TestLoadSeeds_InsertsRecords(t *testing.T) {
	repo := newTestRepository(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.json"), []byte(seedJSON), 0o644))

	n, err := LoadSeeds(context.Background(), repo, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.Get(context.Background(), "seed-1", models.AgentBrain)
	require.NoError(t, err)
	assert.Equal(t, "incident-playbook", got.Key)
}

func TestLoadSeeds_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.json"), []byte(seedJSON), 0o644))

	_, err := LoadSeeds(context.Background(), repo, dir)
	require.NoError(t, err)

	n, err := LoadSeeds(context.Background(), repo, dir)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadSeeds_MissingDirectory(t *testing.T) {
	repo := newTestRepository(t)
	n, err := LoadSeeds(context.Background(), repo, filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadSeeds_MalformedFile(t *testing.T) {
	repo := newTestRepository(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	_, err := LoadSeeds(context.Background(), repo, dir)
	assert.Error(t, err)
}
