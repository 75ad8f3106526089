package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "wildcard", input: "all", expected: FilterAll},
		{name: "empty means wildcard", input: "", expected: FilterAll},
		{name: "concrete category", input: "gallery", expected: "gallery"},
		{name: "case insensitive", input: " Profile ", expected: "profile"},
		{name: "unknown", input: "selfies", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCategory) {
					t.Fatalf("Expected ErrInvalidCategory, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestUploadCategory(t *testing.T) {
	got, err := UploadCategory(FilterAll)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != CategoryOther {
		t.Errorf("Expected wildcard to resolve to %q, got %q", CategoryOther, got)
	}

	got, err = UploadCategory("testimonials")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != CategoryTestimonials {
		t.Errorf("Expected %q, got %q", CategoryTestimonials, got)
	}

	if _, err := ParseCategory(FilterAll); err == nil {
		t.Error("Expected the wildcard to be rejected as a concrete category")
	}
}

func TestIsImageType(t *testing.T) {
	cases := map[string]bool{
		"image/png":               true,
		"IMAGE/JPEG":              true,
		"image/svg+xml":           true,
		"text/plain":              false,
		"":                        false,
		"application/x-image/png": false,
	}
	for ct, want := range cases {
		if got := IsImageType(ct); got != want {
			t.Errorf("IsImageType(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.FixedZone("EST", -5*3600))
	if got := FormatTimestamp(ts); got != "2024-05-01T17:30:00.123Z" {
		t.Errorf("Unexpected timestamp %s", got)
	}
}
