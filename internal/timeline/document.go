// Package timeline holds the timeline document tree, its write-time
// validation, and the read-side response formatting.
//
// A stored document is a JSON object whose only required shape is a
// top-level "categories" array. Inside the tree, malformed items degrade
// to zero values during deserialization instead of failing the decode,
// so the formatter can stay total.
package timeline

import (
	"encoding/json"
	"strconv"
	"strings"
)

// MaxDataSize is the default cap on the raw document payload.
const MaxDataSize = 5 * 1024 * 1024

type Document struct {
	Categories []Category `json:"categories"`
}

type Category struct {
	Name        string  `json:"name"`
	CustomColor *string `json:"customColor"`
	Events      []Event `json:"events"`
}

type Event struct {
	Name      string     `json:"name"`
	Schedules []Schedule `json:"schedules"`
}

type Schedule struct {
	Name        string  `json:"name"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Issue       any     `json:"issue"`
	CustomColor *string `json:"customColor"`
}

func (c *Category) UnmarshalJSON(data []byte) error {
	*c = Category{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	c.Name = stringField(fields, "name")
	c.CustomColor = optionalStringField(fields, "customColor")
	if raw, ok := fields["events"]; ok {
		_ = json.Unmarshal(raw, &c.Events)
	}
	return nil
}

func (e *Event) UnmarshalJSON(data []byte) error {
	*e = Event{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	e.Name = stringField(fields, "name")
	if raw, ok := fields["schedules"]; ok {
		_ = json.Unmarshal(raw, &e.Schedules)
	}
	return nil
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	*s = Schedule{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	s.Name = stringField(fields, "name")
	s.StartDate = stringField(fields, "startDate")
	s.EndDate = stringField(fields, "endDate")
	s.CustomColor = optionalStringField(fields, "customColor")
	if raw, ok := fields["issue"]; ok {
		_ = json.Unmarshal(raw, &s.Issue)
	}
	return nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func optionalStringField(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return &value
}

// IssueID extracts the numeric work-item id from a schedule's issue
// reference. References arrive as JSON numbers or strings; anything
// else (or an empty string) carries no id.
func IssueID(issue any) (int64, bool) {
	switch v := issue.(type) {
	case float64:
		return int64(v), true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
