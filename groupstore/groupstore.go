// Package groupstore persists the selected target group id between runs as
// a single small JSON record. The record is written by the select-group
// tool and read once at startup; an absent file means "use the configured
// default".
package groupstore

import (
	"encoding/json"
	"fmt"
	"os"
)

type record struct {
	GroupID int64 `json:"group_id"`
}

// Load reads the selected group id from path. ok is false when no selection
// has been persisted yet.
func Load(path string) (groupID int64, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", path, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec.GroupID, true, nil
}

// Save writes the selected group id to path.
func Save(path string, groupID int64) error {
	data, err := json.Marshal(record{GroupID: groupID})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Remove deletes the persisted selection so the configured default applies
// again. Missing files are not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
