package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Organization is a humanitarian organization that holds contracts.
type Organization struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"` // URL-friendly identifier
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validation errors for organizations.
var (
	ErrOrgNameRequired = errors.New("organization name is required")
	ErrOrgNameTooLong  = errors.New("organization name must be 255 characters or less")
	ErrOrgSlugRequired = errors.New("organization slug is required")
	ErrOrgSlugInvalid  = errors.New("organization slug must contain only lowercase letters, numbers, and hyphens")
)

// slugPattern matches valid slug characters: lowercase letters, numbers, and hyphens.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// Validate validates the organization fields.
func (o *Organization) Validate() error {
	name := strings.TrimSpace(o.Name)
	if name == "" {
		return ErrOrgNameRequired
	}
	if len(name) > 255 {
		return ErrOrgNameTooLong
	}
	if o.Slug == "" {
		return ErrOrgSlugRequired
	}
	if !slugPattern.MatchString(o.Slug) {
		return ErrOrgSlugInvalid
	}
	return nil
}

// GenerateSlug generates a URL-friendly slug from the organization name.
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.NewReplacer(" ", "-", "_", "-").Replace(slug)

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > 63 {
		slug = strings.TrimRight(slug[:63], "-")
	}
	return slug
}
