package account

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Emails are stored and looked up in this form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
