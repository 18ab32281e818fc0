package wizard

import (
	"bytes"
	"encoding/json"

	"projectally/api/internal/store"
)

// canonicalSnapshot serializes the watched form fields deterministically:
// struct field order is fixed and encoding/json emits map keys sorted, so two
// structurally equal states always produce the same bytes. The snapshot is
// what the engine diffs against the last-synced baseline.
func canonicalSnapshot(formData store.FormData) (string, error) {
	if formData.SelectedProjectIDs == nil {
		formData.SelectedProjectIDs = []int{}
	}
	raw, err := json.Marshal(formData)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// structurallyEqual compares two opaque step-state slices by value. Step
// widgets re-emit equivalent state as fresh objects on every render, so
// reference comparison is useless here.
func structurallyEqual(a, b map[string]any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(rawA, rawB)
}
