package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	CodeMalformedJSON   = "malformed_json"
	CodeSchemaViolation = "schema_violation"
	CodeTooLarge        = "too_large"
)

// ValidationError describes a write-time rejection with a field-level
// message suitable for returning to the caller verbatim.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseDocument validates a raw payload and decodes it into a Document.
// maxBytes <= 0 falls back to MaxDataSize. The top-level shape is strict
// (an object with a categories array); inner items decode leniently.
func ParseDocument(raw []byte, maxBytes int) (Document, error) {
	if maxBytes <= 0 {
		maxBytes = MaxDataSize
	}
	if len(raw) > maxBytes {
		return Document{}, &ValidationError{
			Field:   "data",
			Code:    CodeTooLarge,
			Message: fmt.Sprintf("document exceeds the maximum size of %d bytes", maxBytes),
		}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		// Distinguish "not JSON at all" from "JSON but not an object".
		var probe any
		if json.Unmarshal(raw, &probe) != nil {
			return Document{}, &ValidationError{
				Field:   "data",
				Code:    CodeMalformedJSON,
				Message: "payload is not valid JSON",
			}
		}
		return Document{}, &ValidationError{
			Field:   "data",
			Code:    CodeSchemaViolation,
			Message: "document must be a JSON object",
		}
	}

	rawCategories, ok := top["categories"]
	if !ok {
		return Document{}, &ValidationError{
			Field:   "categories",
			Code:    CodeSchemaViolation,
			Message: "categories array is required",
		}
	}
	var categories []json.RawMessage
	if err := json.Unmarshal(rawCategories, &categories); err != nil || categories == nil && string(bytes.TrimSpace(rawCategories)) == "null" {
		return Document{}, &ValidationError{
			Field:   "categories",
			Code:    CodeSchemaViolation,
			Message: "categories must be an array",
		}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Lenient element decoding means this only trips on exotic input,
		// but surface it as a schema problem rather than a server error.
		return Document{}, &ValidationError{
			Field:   "data",
			Code:    CodeSchemaViolation,
			Message: "document tree could not be decoded",
		}
	}
	return doc, nil
}
