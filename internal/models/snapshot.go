package models

import (
	"encoding/json"
	"time"
)

// Snapshot kinds, one free-form document per user per feature area.
var SnapshotKinds = map[string]bool{
	"habit":    true,
	"sleep":    true,
	"wealth":   true,
	"recovery": true,
}

// Snapshot is a free-form JSON document owned by a feature editor. The
// server only merges and stores it.
type Snapshot struct {
	UserID    int             `json:"user_id"`
	Kind      string          `json:"kind"`
	Doc       json.RawMessage `json:"doc"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MergeDoc overlays patch onto base at the top level. Keys present in patch
// win; a null value in patch removes the key. Non-object documents are
// replaced wholesale.
func MergeDoc(base, patch json.RawMessage) json.RawMessage {
	var dst, src map[string]json.RawMessage
	if err := json.Unmarshal(base, &dst); err != nil || dst == nil {
		return patch
	}
	if err := json.Unmarshal(patch, &src); err != nil || src == nil {
		return patch
	}
	for k, v := range src {
		if string(v) == "null" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	out, err := json.Marshal(dst)
	if err != nil {
		return patch
	}
	return out
}
