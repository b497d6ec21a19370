package visit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldChange holds the before/after values of one changed field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ChangeSet is the computed diff between a patient's previously stored field
// values and the newly submitted values. It is attached to a Visit in its
// encoded form.
type ChangeSet struct {
	ChangedFields  []string               `json:"changed_fields"`
	Changes        map[string]FieldChange `json:"changes_detail"`
	ChangedCount   int                    `json:"count"`
	UnchangedCount int                    `json:"unchanged_count"`
}

// Diff compares newRecord against oldRecord. Fields present only in
// newRecord are skipped entirely: the comparison is scoped to what the prior
// record knew about. Values are compared after trimming surrounding
// whitespace. Changed field names are emitted in sorted order so the result
// is deterministic for identical inputs.
func Diff(oldRecord, newRecord map[string]string) *ChangeSet {
	cs := &ChangeSet{
		Changes: make(map[string]FieldChange),
	}

	keys := make([]string, 0, len(newRecord))
	for k := range newRecord {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		oldValue, ok := oldRecord[key]
		if !ok {
			continue // new field, not a change
		}
		newValue := newRecord[key]

		if strings.TrimSpace(oldValue) != strings.TrimSpace(newValue) {
			cs.ChangedFields = append(cs.ChangedFields, key)
			cs.Changes[key] = FieldChange{Old: oldValue, New: newValue}
		} else {
			cs.UnchangedCount++
		}
	}

	cs.ChangedCount = len(cs.ChangedFields)
	return cs
}

// Merge folds another change set into this one and returns the result as a
// new value. A field changed in both keeps the earliest old value and the
// latest new value; a field whose latest new value equals its earliest old
// value drops out. Used when successive form saves within one visit each
// contribute their own diff.
func (cs *ChangeSet) Merge(other *ChangeSet) *ChangeSet {
	merged := &ChangeSet{
		Changes:        make(map[string]FieldChange),
		UnchangedCount: cs.UnchangedCount + other.UnchangedCount,
	}
	for k, ch := range cs.Changes {
		merged.Changes[k] = ch
	}
	for k, ch := range other.Changes {
		if prev, ok := merged.Changes[k]; ok {
			if strings.TrimSpace(prev.Old) == strings.TrimSpace(ch.New) {
				delete(merged.Changes, k)
				merged.UnchangedCount++
				continue
			}
			merged.Changes[k] = FieldChange{Old: prev.Old, New: ch.New}
			continue
		}
		merged.Changes[k] = ch
	}

	merged.ChangedFields = make([]string, 0, len(merged.Changes))
	for k := range merged.Changes {
		merged.ChangedFields = append(merged.ChangedFields, k)
	}
	sort.Strings(merged.ChangedFields)
	merged.ChangedCount = len(merged.ChangedFields)
	return merged
}

// Empty reports whether the change set records no changed fields.
func (cs *ChangeSet) Empty() bool {
	return cs.ChangedCount == 0
}

// Encode returns the JSON form of the change set stored on a Visit.
func (cs *ChangeSet) Encode() (string, error) {
	data, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("encode change set: %w", err)
	}
	return string(data), nil
}

// DecodeChangeSet parses an encoded change set back from a Visit row.
func DecodeChangeSet(encoded string) (*ChangeSet, error) {
	var cs ChangeSet
	if err := json.Unmarshal([]byte(encoded), &cs); err != nil {
		return nil, fmt.Errorf("decode change set: %w", err)
	}
	if cs.Changes == nil {
		cs.Changes = make(map[string]FieldChange)
	}
	return &cs, nil
}
