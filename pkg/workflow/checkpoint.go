package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/maestro-ai/maestro/pkg/models"
)

// ErrCheckpointNotFound is returned when no checkpoint matches the query.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointManager persists workflow checkpoints as JSON files under
// <dir>/<workflow_id>/<checkpoint_id>.json.
type CheckpointManager struct {
	dir string
}

// NewCheckpointManager creates a manager rooted at dir.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{dir: dir}
}

// Save writes the checkpoint. A transient write failure is retried once;
// callers decide whether a persistent failure is fatal.
func (m *CheckpointManager) Save(cp models.WorkflowCheckpoint) error {
	err := m.write(cp)
	if err == nil {
		return nil
	}
	if retryErr := m.write(cp); retryErr == nil {
		return nil
	}
	return fmt.Errorf("failed to save checkpoint %s: %w", cp.CheckpointID, err)
}

func (m *CheckpointManager) write(cp models.WorkflowCheckpoint) error {
	dir := filepath.Join(m.dir, cp.WorkflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, cp.CheckpointID+".json"), raw, 0o644)
}

// Load reads one checkpoint by workflow and checkpoint id.
func (m *CheckpointManager) Load(workflowID, checkpointID string) (models.WorkflowCheckpoint, error) {
	path := filepath.Join(m.dir, workflowID, checkpointID+".json")
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.WorkflowCheckpoint{}, fmt.Errorf("%w: %s/%s", ErrCheckpointNotFound, workflowID, checkpointID)
	}
	if err != nil {
		return models.WorkflowCheckpoint{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp models.WorkflowCheckpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return models.WorkflowCheckpoint{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, nil
}

// Latest returns the most recent checkpoint for a workflow.
func (m *CheckpointManager) Latest(workflowID string) (models.WorkflowCheckpoint, error) {
	ids, err := m.List(workflowID)
	if err != nil {
		return models.WorkflowCheckpoint{}, err
	}
	if len(ids) == 0 {
		return models.WorkflowCheckpoint{}, fmt.Errorf("%w: workflow %s", ErrCheckpointNotFound, workflowID)
	}

	latest := models.WorkflowCheckpoint{}
	for _, id := range ids {
		cp, err := m.Load(workflowID, id)
		if err != nil {
			return models.WorkflowCheckpoint{}, err
		}
		if latest.CheckpointID == "" || cp.CreatedAt.After(latest.CreatedAt) {
			latest = cp
		}
	}
	return latest, nil
}

// List returns the checkpoint ids recorded for a workflow, sorted by name.
func (m *CheckpointManager) List(workflowID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.dir, workflowID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, entry.Name()[:len(entry.Name())-len(".json")])
	}
	sort.Strings(ids)
	return ids, nil
}
