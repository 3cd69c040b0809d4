package store

import (
	"encoding/json"
	"os"

	appLog "zeitachse/internal/log"
	"zeitachse/internal/model"
)

// LoadState reads the persisted allocator form state. Any missing file or
// parse failure yields the defaults, same tolerant policy as the event
// store.
func LoadState(path string) model.UIState {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			appLog.Warn("ui state file unreadable, using defaults", "path", path, "err", err)
		}
		return model.DefaultUIState()
	}

	st := model.DefaultUIState()
	if err := json.Unmarshal(data, &st); err != nil {
		appLog.Warn("ui state file malformed, using defaults", "path", path, "err", err)
		return model.DefaultUIState()
	}
	return st
}

// SaveState overwrites the whole state file with the given record.
func SaveState(path string, st model.UIState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// DeleteState removes the state file if present; a subsequent LoadState
// returns defaults.
func DeleteState(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
