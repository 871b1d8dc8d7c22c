package models

import "time"

// Memory record categories used by the built-in agents. The column is free
// text; these are conventions, not an enum.
const (
	CategorySolutions = "solutions"
	CategoryPatterns  = "patterns"
	CategoryDecisions = "decisions"
)

// RecordMetadata carries tags and provenance for a memory record.
type RecordMetadata struct {
	Tags           []string  `json:"tags,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	RelatedRecords []string  `json:"related_records,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
}

// MemoryRecord is a unit of shared agent memory addressed by RecordID.
// Records are created once and never mutated in place; Update writes the
// mutable fields (Data, Metadata, EmbeddingVector) and bumps UpdatedAt.
// RecordID, AgentOrigin, and CreatedAt are immutable.
type MemoryRecord struct {
	RecordID        string         `json:"record_id"`
	Key             string         `json:"key"`
	Category        string         `json:"category"`
	Data            map[string]any `json:"data"`
	AgentOrigin     AgentID        `json:"agent_origin"`
	EmbeddingVector []float64      `json:"embedding_vector,omitempty"`
	Metadata        RecordMetadata `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate maps and slices without
// aliasing the stored record.
func (r MemoryRecord) Clone() MemoryRecord {
	out := r
	if r.Data != nil {
		out.Data = make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = v
		}
	}
	if r.EmbeddingVector != nil {
		out.EmbeddingVector = append([]float64(nil), r.EmbeddingVector...)
	}
	if r.Metadata.Tags != nil {
		out.Metadata.Tags = append([]string(nil), r.Metadata.Tags...)
	}
	if r.Metadata.RelatedRecords != nil {
		out.Metadata.RelatedRecords = append([]string(nil), r.Metadata.RelatedRecords...)
	}
	return out
}

// MemoryPermission grants an agent access to one record. Unique per
// (RecordID, AgentID). The creating agent receives all three flags in the
// same transaction as the record insert.
type MemoryPermission struct {
	RecordID string  `json:"record_id"`
	AgentID  AgentID `json:"agent_id"`
	Read     bool    `json:"read"`
	Write    bool    `json:"write"`
	Delete   bool    `json:"delete"`
}
