package model

import (
	"strings"
	"unicode"
)

// NormalizeFieldName turns a spreadsheet header such as "Job Title" or "E-mail"
// into the snake_case key used in row payloads ("job_title", "e_mail").
func NormalizeFieldName(header string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(header) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
	}
	return b.String()
}
