package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/maestro-ai/maestro/pkg/models"
)

// LoadSeeds bootstraps the repository from JSON files under dir. Each file
// holds an array of records. Records whose id already exists are skipped, so
// seeding is idempotent across restarts. Returns the number of records
// inserted. A missing directory is not an error.
func LoadSeeds(ctx context.Context, repo *Repository, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read seed directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	inserted := 0
	for _, name := range files {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return inserted, fmt.Errorf("failed to read seed file %s: %w", name, err)
		}
		var records []models.MemoryRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return inserted, fmt.Errorf("failed to parse seed file %s: %w", name, err)
		}

		for _, record := range records {
			if _, err := repo.Put(ctx, record); err != nil {
				if errors.Is(err, ErrDuplicateKey) {
					continue
				}
				return inserted, fmt.Errorf("failed to seed record %s from %s: %w", record.Key, name, err)
			}
			inserted++
		}
		slog.Info("Loaded memory seed file", "file", name)
	}
	return inserted, nil
}
