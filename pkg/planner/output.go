package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maestro-ai/maestro/pkg/models"
)

// OutputWriter persists generated plans as pretty-printed JSON files, one
// per plan, named by plan id.
type OutputWriter struct {
	dir string
}

// NewOutputWriter creates a writer rooted at dir. The directory is created
// on first write.
func NewOutputWriter(dir string) *OutputWriter {
	return &OutputWriter{dir: dir}
}

// Write serializes the plan to <dir>/<plan_id>.json.
func (w *OutputWriter) Write(plan models.Plan) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create plan output directory: %w", err)
	}

	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	path := filepath.Join(w.dir, plan.PlanID+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

// Read loads a previously written plan by id.
func (w *OutputWriter) Read(planID string) (models.Plan, error) {
	raw, err := os.ReadFile(filepath.Join(w.dir, planID+".json"))
	if err != nil {
		return models.Plan{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return models.Plan{}, fmt.Errorf("failed to decode plan file: %w", err)
	}
	return plan, nil
}
