package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/maestro-ai/maestro/pkg/models"
)

// defaultSearchK bounds result sets when the caller does not pick a k.
const defaultSearchK = 10

// SearchQuery selects one of the two search modes. Vector mode is used when
// Vector is non-empty, text mode otherwise. K nil means the default of 10;
// an explicit zero returns an empty result.
type SearchQuery struct {
	Text     string    `json:"text,omitempty"`
	Vector   []float64 `json:"vector,omitempty"`
	Category string    `json:"category,omitempty"`
	K        *int      `json:"k,omitempty"`
}

// scored pairs a record with its rank score for sorting.
type scored struct {
	record models.MemoryRecord
	score  float64
}

// SearchSimilar returns up to k records ranked by similarity to the query,
// restricted to records the agent can read.
//
// Text mode counts case-insensitive substring matches over the key and the
// serialized data. Vector mode ranks by cosine similarity over embeddings of
// matching length. Ties break by CreatedAt descending, then RecordID.
func (r *Repository) SearchSimilar(ctx context.Context, query SearchQuery, agent models.AgentID) ([]models.MemoryRecord, error) {
	k := defaultSearchK
	if query.K != nil {
		k = *query.K
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be non-negative", ErrValidation)
	}
	if k == 0 {
		return []models.MemoryRecord{}, nil
	}
	if len(query.Vector) == 0 && strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("%w: search query is empty", ErrValidation)
	}

	candidates, err := r.readableRecords(ctx, agent, query.Category)
	if err != nil {
		return nil, err
	}

	var ranked []scored
	if len(query.Vector) > 0 {
		ranked = rankByCosine(candidates, query.Vector)
	} else {
		ranked = rankBySubstring(candidates, query.Text)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].record.CreatedAt.Equal(ranked[j].record.CreatedAt) {
			return ranked[i].record.CreatedAt.After(ranked[j].record.CreatedAt)
		}
		return ranked[i].record.RecordID < ranked[j].record.RecordID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]models.MemoryRecord, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.record)
	}
	return out, nil
}

// readableRecords loads the records the agent holds read permission on,
// optionally filtered by category.
func (r *Repository) readableRecords(ctx context.Context, agent models.AgentID, category string) ([]models.MemoryRecord, error) {
	q := selectRecordSQL + `
	 JOIN memory_permissions p ON p.record_id = memory_records.record_id
	 WHERE p.agent_id = ? AND p.can_read = 1`
	args := []any{string(agent)}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}

	rows, err := r.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []models.MemoryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// rankBySubstring counts case-insensitive occurrences of the query in the
// key and the serialized data. Records with no match are excluded.
func rankBySubstring(records []models.MemoryRecord, text string) []scored {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make([]scored, 0, len(records))
	for _, record := range records {
		count := strings.Count(strings.ToLower(record.Key), needle)
		if data, err := json.Marshal(record.Data); err == nil {
			count += strings.Count(strings.ToLower(string(data)), needle)
		}
		if count > 0 {
			out = append(out, scored{record: record, score: float64(count)})
		}
	}
	return out
}

// rankByCosine ranks records whose embedding length matches the query.
func rankByCosine(records []models.MemoryRecord, vector []float64) []scored {
	out := make([]scored, 0, len(records))
	for _, record := range records {
		if len(record.EmbeddingVector) != len(vector) {
			continue
		}
		out = append(out, scored{record: record, score: cosine(record.EmbeddingVector, vector)})
	}
	return out
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
