package internal

import (
	"net/url"
	"strconv"
	"strings"
)

const DefaultWebmailHost = "mail.google.com"

// LinkKind says how a resolved link reaches the mail.
type LinkKind string

const (
	LinkKindToken  LinkKind = "token"
	LinkKindSearch LinkKind = "search"
)

// LinkBuilder assembles web UI URLs for one webmail host. The zero value
// targets DefaultWebmailHost.
type LinkBuilder struct {
	Host string
}

func (b LinkBuilder) host() string {
	h := strings.TrimSpace(b.Host)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimRight(h, "/")
	if h == "" {
		return DefaultWebmailHost
	}
	return h
}

// Base returns the mailbox root. With an account index the link is pinned to
// that signed-in account, otherwise the browser's default account opens it.
func (b LinkBuilder) Base(accountIndex *int) string {
	var sb strings.Builder
	sb.WriteString("https://")
	sb.WriteString(b.host())
	sb.WriteString("/mail/")
	if accountIndex != nil && *accountIndex >= 0 {
		sb.WriteString("u/")
		sb.WriteString(strconv.Itoa(*accountIndex))
		sb.WriteByte('/')
	}
	return sb.String()
}

func (b LinkBuilder) TokenURL(token string, accountIndex *int) string {
	return b.Base(accountIndex) + "#all/" + token
}

func (b LinkBuilder) SearchURL(query string, accountIndex *int) string {
	return b.Base(accountIndex) + "#search/" + escapeFragment(query)
}

// escapeFragment percent-encodes everything outside the unreserved set and
// writes spaces as %20.
func escapeFragment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
