package internal

import (
	"net/mail"
	"strconv"
	"strings"
	"time"
)

const searchDateLayout = "2006/01/02"

// SearchClauses returns the provider search clauses available for the given
// metadata, in the order from, subject, date window. Missing fields add no
// clause.
func SearchClauses(subject, sender, receivedAt string) []string {
	var clauses []string
	if s := strings.TrimSpace(sender); s != "" {
		clauses = append(clauses, "from:"+s)
	}
	if s := strings.TrimSpace(subject); s != "" {
		clauses = append(clauses, `subject:"`+strings.ReplaceAll(s, `"`, `\"`)+`"`)
	}
	if t, ok := ParseReceivedAt(receivedAt); ok {
		day := t.UTC()
		clauses = append(clauses, "after:"+day.AddDate(0, 0, -1).Format(searchDateLayout)+
			" before:"+day.AddDate(0, 0, 1).Format(searchDateLayout))
	}
	return clauses
}

func BuildSearchQuery(subject, sender, receivedAt string) string {
	return strings.Join(SearchClauses(subject, sender, receivedAt), " ")
}

// BuildSearchURL returns a search link on the default webmail host.
func BuildSearchURL(subject, sender, receivedAt string, accountIndex *int) (string, bool) {
	return LinkBuilder{}.BuildSearchURL(subject, sender, receivedAt, accountIndex)
}

func (b LinkBuilder) BuildSearchURL(subject, sender, receivedAt string, accountIndex *int) (string, bool) {
	q := BuildSearchQuery(subject, sender, receivedAt)
	if q == "" {
		return "", false
	}
	return b.SearchURL(q, accountIndex), true
}

var receivedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseReceivedAt accepts RFC 3339 timestamps, mail Date header values and
// epoch milliseconds as reported by the mail API.
func ParseReceivedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range receivedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil && !t.IsZero() {
			return t, true
		}
	}
	if t, err := mail.ParseDate(s); err == nil && !t.IsZero() {
		return t, true
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
