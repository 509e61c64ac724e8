package types

import (
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingJob is one entry on the embedding stream. Jobs are immutable once
// enqueued; retry happens by leaving the entry un-acked.
type EmbeddingJob struct {
	UserID    string
	SessionID string
	Content   string
	CreatedAt float64
}

func (j EmbeddingJob) Fields() map[string]any {
	return map[string]any{
		"user_id":    j.UserID,
		"session_id": j.SessionID,
		"content":    j.Content,
		"created_at": strconv.FormatFloat(j.CreatedAt, 'f', -1, 64),
	}
}

func EmbeddingJobFromFields(fields map[string]any) (EmbeddingJob, error) {
	j := EmbeddingJob{
		UserID:    fieldString(fields, "user_id"),
		SessionID: fieldString(fields, "session_id"),
		Content:   fieldString(fields, "content"),
	}
	if raw := fieldString(fields, "created_at"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return EmbeddingJob{}, fmt.Errorf("bad created_at %q: %w", raw, err)
		}
		j.CreatedAt = f
	}
	if j.UserID == "" || j.SessionID == "" {
		return EmbeddingJob{}, fmt.Errorf("embedding job missing user_id or session_id")
	}
	return j, nil
}

// PrefJob is one entry on the preference extraction stream.
type PrefJob struct {
	UserID    string
	SessionID string
}

func (j PrefJob) Fields() map[string]any {
	return map[string]any{
		"user_id":    j.UserID,
		"session_id": j.SessionID,
	}
}

func PrefJobFromFields(fields map[string]any) (PrefJob, error) {
	j := PrefJob{
		UserID:    fieldString(fields, "user_id"),
		SessionID: fieldString(fields, "session_id"),
	}
	if j.UserID == "" || j.SessionID == "" {
		return PrefJob{}, fmt.Errorf("pref job missing user_id or session_id")
	}
	return j, nil
}

func fieldString(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
