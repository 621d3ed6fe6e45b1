package timeline

import (
	"log"
	"strings"
	"time"
)

// ResponseVersion is the version tag stamped into every formatted
// document's metadata block.
const ResponseVersion = "1.0"

// DefaultName is the document name used when the caller supplies none.
const DefaultName = "Default"

// Name defaults applied while formatting.
const (
	defaultCategoryName = "Uncategorized"
	defaultEventName    = "Unnamed"
	defaultScheduleName = "No schedule"
)

type Response struct {
	Metadata   Metadata            `json:"metadata"`
	Categories []FormattedCategory `json:"categories"`
}

type Metadata struct {
	ExportDate  string `json:"exportDate"`
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type FormattedCategory struct {
	Name        string           `json:"name"`
	Index       int              `json:"index"`
	CustomColor *string          `json:"customColor"`
	Events      []FormattedEvent `json:"events"`
}

type FormattedEvent struct {
	Name      string              `json:"name"`
	Schedules []FormattedSchedule `json:"schedules"`
}

type FormattedSchedule struct {
	Name        string  `json:"name"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Issue       any     `json:"issue"`
	DoneRatio   *int    `json:"doneRatio"`
	CustomColor *string `json:"customColor"`
}

// Format produces the externally-facing document shape. doc may be nil,
// in which case a canonical empty document is returned. updatedAt, when
// non-zero, becomes the metadata exportDate; otherwise the current time
// is used. doneRatios carries resolved work-item progress keyed by
// issue id. The function never fails: malformed per-item data degrades
// to defaults and nulls.
func Format(doc *Document, name, description string, updatedAt time.Time, doneRatios map[int64]int) Response {
	if name == "" {
		name = DefaultName
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	response := Response{
		Metadata: Metadata{
			ExportDate:  updatedAt.UTC().Format(time.RFC3339),
			Version:     ResponseVersion,
			Name:        name,
			Description: description,
		},
		Categories: []FormattedCategory{},
	}
	if doc == nil {
		return response
	}

	for i, category := range doc.Categories {
		formatted := FormattedCategory{
			Name:        category.Name,
			Index:       i,
			CustomColor: category.CustomColor,
			Events:      []FormattedEvent{},
		}
		if formatted.Name == "" {
			formatted.Name = defaultCategoryName
		}
		for _, event := range category.Events {
			formattedEvent := FormattedEvent{
				Name:      event.Name,
				Schedules: []FormattedSchedule{},
			}
			if formattedEvent.Name == "" {
				formattedEvent.Name = defaultEventName
			}
			for _, schedule := range event.Schedules {
				formattedEvent.Schedules = append(formattedEvent.Schedules, formatSchedule(schedule, doneRatios))
			}
			formatted.Events = append(formatted.Events, formattedEvent)
		}
		response.Categories = append(response.Categories, formatted)
	}
	return response
}

func formatSchedule(schedule Schedule, doneRatios map[int64]int) FormattedSchedule {
	formatted := FormattedSchedule{
		Name:        schedule.Name,
		StartDate:   normalizeDate(schedule.StartDate),
		EndDate:     normalizeDate(schedule.EndDate),
		Issue:       schedule.Issue,
		CustomColor: schedule.CustomColor,
	}
	if formatted.Name == "" {
		formatted.Name = defaultScheduleName
	}
	if formatted.Issue == nil {
		formatted.Issue = ""
	}
	if id, ok := IssueID(schedule.Issue); ok {
		if ratio, resolved := doneRatios[id]; resolved {
			formatted.DoneRatio = &ratio
		}
	}
	return formatted
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// normalizeDate parses a stored date string into canonical YYYY-MM-DD
// form. Absent or unparsable values yield nil; a bad date degrades only
// that field.
func normalizeDate(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			normalized := parsed.Format("2006-01-02")
			return &normalized
		}
	}
	log.Printf("timeline: unparsable date %q, degrading to null", trimmed)
	return nil
}
