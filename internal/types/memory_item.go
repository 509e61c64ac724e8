package types

type MemoryType string

const (
	MemoryIntraSession   MemoryType = "intra_session"
	MemoryInterSession   MemoryType = "inter_session"
	MemoryUserPreference MemoryType = "user_preference"
	MemoryProfile        MemoryType = "profile"
	MemoryTurn           MemoryType = "turn"
)

// MemoryItem is the unified in-memory record handed back to retrieval callers.
type MemoryItem struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      MemoryType     `json:"memory_type"`
	Content   string         `json:"content"`
	CreatedAt float64        `json:"created_at"`
	UpdatedAt float64        `json:"updated_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Version   int            `json:"version"`
}

// ScoredMemory pairs a retrieved item with its similarity score.
type ScoredMemory struct {
	Item  MemoryItem
	Score float64
}
