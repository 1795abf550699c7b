package domain

import (
	"encoding/json"
	"fmt"
)

// EncodeBlob serializes the full record as a UTF-8 JSON object. Timestamps
// are RFC 3339 strings and round-trip losslessly.
func EncodeBlob(record *Record) ([]byte, error) {
	if record == nil {
		return nil, ErrInvalidRecord
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record %s: %v", ErrMalformedPayload, record.ID, err)
	}
	return data, nil
}

// DecodeBlob parses a blob previously written by EncodeBlob.
func DecodeBlob(data []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decode blob: %v", ErrMalformedPayload, err)
	}
	if record.ID == "" {
		return nil, fmt.Errorf("%w: blob has no record id", ErrMalformedPayload)
	}
	return &record, nil
}
