package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnvelopeVersion is the schema version written by this package
const EnvelopeVersion = 1

type envelope[T any] struct {
	Version  int   `json:"version"`
	Revision int64 `json:"revision"`
	Records  []T   `json:"records"`
}

// decodeRecords accepts the versioned envelope or a bare legacy array
// (revision 0). Absent and null values decode to an empty collection.
func decodeRecords[T any](raw string) ([]T, int64, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, 0, nil
	}

	switch data[0] {
	case '[':
		var records []T
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, 0, err
		}
		return nonNil(records), 0, nil
	case '{':
		var env envelope[T]
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, 0, err
		}
		if env.Version > EnvelopeVersion {
			return nil, 0, fmt.Errorf("unsupported envelope version %d", env.Version)
		}
		return nonNil(env.Records), env.Revision, nil
	default:
		return nil, 0, fmt.Errorf("expected array or envelope, got %q", string(data[:1]))
	}
}

func encodeRecords[T any](records []T, revision int64) (string, error) {
	data, err := json.Marshal(envelope[T]{
		Version:  EnvelopeVersion,
		Revision: revision,
		Records:  nonNil(records),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nonNil[T any](records []T) []T {
	if records == nil {
		return []T{}
	}
	return records
}
