package domain

import (
	"fmt"
	"strings"
	"time"
)

// GenerateBlobPath returns the deterministic blob location for a record:
// {tier}/{year}/{month:02}/{day:02}/{sanitized_customer_id}/{id}.json.
// A zero creation timestamp falls back to the quarantine path
// {tier}/error/{id}.json instead of failing the migration.
func GenerateBlobPath(tier string, createdAt time.Time, customerID, id string) string {
	if createdAt.IsZero() {
		return fmt.Sprintf("%s/error/%s.json", tier, id)
	}
	created := createdAt.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s/%s.json",
		tier,
		created.Year(),
		int(created.Month()),
		created.Day(),
		SanitizeCustomerID(customerID),
		id,
	)
}

// SanitizeCustomerID replaces every character outside [A-Za-z0-9_-] with an
// underscore so customer ids stay path-safe and human-browsable.
func SanitizeCustomerID(customerID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return '_'
		}
		return r
	}, customerID)
}
