package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category groups uploaded images for display on the portfolio
type Category string

const (
	CategoryProfile      Category = "profile"
	CategoryProjects     Category = "projects"
	CategoryTestimonials Category = "testimonials"
	CategoryGallery      Category = "gallery"
	CategoryOther        Category = "other"
)

// FilterAll is the wildcard accepted wherever a category filter is expected
const FilterAll = "all"

// TimestampLayout is the ISO-8601 form used for uploadedAt
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var ErrInvalidCategory = errors.New("invalid category")

// Categories lists every category in display order
func Categories() []Category {
	return []Category{CategoryProfile, CategoryProjects, CategoryTestimonials, CategoryGallery, CategoryOther}
}

// ParseCategory validates a concrete category name
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// ParseFilter validates a category filter, which may be FilterAll.
// An empty string is treated as FilterAll.
func ParseFilter(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == FilterAll {
		return FilterAll, nil
	}
	c, err := ParseCategory(s)
	if err != nil {
		return "", err
	}
	return string(c), nil
}

// UploadCategory resolves the category an upload lands in. The wildcard maps to other.
func UploadCategory(filter string) (Category, error) {
	f, err := ParseFilter(filter)
	if err != nil {
		return "", err
	}
	if f == FilterAll {
		return CategoryOther, nil
	}
	return Category(f), nil
}

// ImageRecord represents one uploaded image asset
type ImageRecord struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	URL        string   `json:"url" yaml:"url"`
	Size       int64    `json:"size" yaml:"size"`
	Type       string   `json:"type" yaml:"type"`
	Category   Category `json:"category" yaml:"category"`
	UploadedAt string   `json:"uploadedAt" yaml:"uploadedat"`
}

// IsImageType reports whether a declared content type is accepted for upload
func IsImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// FormatTimestamp renders t in the layout stored in uploadedAt
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
