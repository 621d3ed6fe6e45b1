package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"timeline/api/internal/timeline"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "Default"},
		{"   ", "Default"},
		{"  Release Plan  ", "Release Plan"},
		{strings.Repeat("x", 300), strings.Repeat("x", 255)},
	}
	for _, tc := range cases {
		if got := normalizeName(tc.in); got != tc.want {
			t.Errorf("normalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidationToDomainMapping(t *testing.T) {
	cases := []struct {
		code       string
		wantStatus int
		wantCode   string
	}{
		{timeline.CodeMalformedJSON, http.StatusBadRequest, "MALFORMED_JSON"},
		{timeline.CodeSchemaViolation, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{timeline.CodeTooLarge, http.StatusUnprocessableEntity, "TOO_LARGE"},
	}
	for _, tc := range cases {
		err := validationToDomain(&timeline.ValidationError{Field: "data", Code: tc.code, Message: "boom"})
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			t.Fatalf("expected DomainError for %s, got %v", tc.code, err)
		}
		if domainErr.Status != tc.wantStatus || domainErr.Code != tc.wantCode {
			t.Errorf("%s mapped to %d/%s, want %d/%s", tc.code, domainErr.Status, domainErr.Code, tc.wantStatus, tc.wantCode)
		}
	}
}

func TestValidationToDomainPassesUnknownErrors(t *testing.T) {
	sentinel := errors.New("db down")
	if got := validationToDomain(sentinel); !errors.Is(got, sentinel) {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestParseStoredDegradesCorruptPayload(t *testing.T) {
	doc := parseStored(`{{{`)
	if len(doc.Categories) != 0 {
		t.Fatalf("expected empty tree, got %+v", doc)
	}
}

func TestBootstrapSeedsEmptyDatabaseOnce(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(fs.projects) != 1 {
		t.Fatalf("expected one seeded project, got %d", len(fs.projects))
	}
	if len(fs.users) != 1 {
		t.Fatalf("expected one seeded user, got %d", len(fs.users))
	}

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if len(fs.projects) != 1 || len(fs.users) != 1 {
		t.Fatal("Bootstrap must be a no-op on a populated database")
	}
}
