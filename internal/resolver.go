package internal

import (
	"errors"
	"log/slog"
	"strings"

	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
)

var ErrNoLinkAvailable = errors.New("no link available")

// Tier names the resolution step that produced a link.
type Tier string

const (
	TierNativeToken  Tier = "native_token"
	TierThreadToken  Tier = "thread_token"
	TierMessageToken Tier = "message_token"
	TierSearch       Tier = "search"
	TierNone         Tier = "none"
)

// Source names the record field a link was built from.
type Source string

const (
	SourceRecordToken Source = "record_token"
	SourcePrimary     Source = "primary"
	SourceSecondary   Source = "secondary"
	SourceMetadata    Source = "metadata"
)

// Record is the mail metadata a link is resolved from. Any field may be
// empty.
type Record struct {
	// MessageID is the primary identifier, usually a legacy hex id.
	MessageID string `json:"message_id"`
	// ThreadID is tried when MessageID yields nothing.
	ThreadID string `json:"thread_id"`
	// Token is a web UI token captured earlier, tried before either id.
	Token string `json:"token"`

	Subject    string `json:"subject"`
	From       string `json:"from"`
	ReceivedAt string `json:"received_at"`

	AccountIndex *int `json:"account_index,omitempty"`
}

type Resolution struct {
	URL    string   `json:"url"`
	Kind   LinkKind `json:"kind"`
	Tier   Tier     `json:"tier"`
	Source Source   `json:"source"`
}

type Encoder interface {
	EncodeLegacyID(hex string, class TokenClass) (string, bool)
}

type EncoderFunc func(hex string, class TokenClass) (string, bool)

func (f EncoderFunc) EncodeLegacyID(hex string, class TokenClass) (string, bool) {
	return f(hex, class)
}

// LegacyEncoder is the production encoder.
var LegacyEncoder Encoder = EncoderFunc(EncodeLegacyID)

type step struct {
	source Source
	tier   Tier
	run    func(rec Record) (string, bool)
}

func (s step) String() string {
	return string(s.source) + ":" + string(s.tier)
}

// Resolver picks the best link for a record by walking a fixed list of
// steps and stopping at the first one that produces a URL.
type Resolver struct {
	links   LinkBuilder
	encoder Encoder
	steps   []step
	log     *slog.Logger
}

func NewResolver(links LinkBuilder, encoder Encoder) *Resolver {
	if encoder == nil {
		encoder = LegacyEncoder
	}
	r := &Resolver{links: links, encoder: encoder}
	r.steps = r.buildSteps()
	return r
}

func (r *Resolver) WithLogger(l *slog.Logger) *Resolver {
	r.log = l
	return r
}

func (r *Resolver) logger() *slog.Logger {
	if r.log != nil {
		return r.log
	}
	return applog.Default()
}

// Plan lists the steps in the order Resolve tries them.
func (r *Resolver) Plan() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.String()
	}
	return names
}

func (r *Resolver) Resolve(rec Record) (Resolution, error) {
	for _, s := range r.steps {
		url, ok := s.run(rec)
		if !ok {
			continue
		}
		kind := LinkKindToken
		if s.tier == TierSearch {
			kind = LinkKindSearch
		}
		r.logger().Debug("deep link resolved", "tier", s.tier, "source", s.source)
		return Resolution{URL: url, Kind: kind, Tier: s.tier, Source: s.source}, nil
	}
	r.logger().Debug("deep link unavailable",
		"has_message_id", rec.MessageID != "",
		"has_thread_id", rec.ThreadID != "",
		"has_subject", rec.Subject != "",
	)
	return Resolution{Tier: TierNone}, ErrNoLinkAvailable
}

func (r *Resolver) buildSteps() []step {
	var steps []step
	fields := []struct {
		source Source
		get    func(Record) string
	}{
		{SourceRecordToken, func(rec Record) string { return rec.Token }},
		{SourcePrimary, func(rec Record) string { return rec.MessageID }},
		{SourceSecondary, func(rec Record) string { return rec.ThreadID }},
	}
	for _, f := range fields {
		steps = append(steps, r.identifierSteps(f.source, f.get)...)
	}
	steps = append(steps, step{
		source: SourceMetadata,
		tier:   TierSearch,
		run: func(rec Record) (string, bool) {
			return r.links.BuildSearchURL(rec.Subject, rec.From, rec.ReceivedAt, rec.AccountIndex)
		},
	})
	return steps
}

// identifierSteps expands one identifier field into native, thread and
// message attempts. Thread comes first: a thread view still opens after the
// message has been archived or moved, a message view may not.
func (r *Resolver) identifierSteps(source Source, get func(Record) string) []step {
	id := func(rec Record) string { return strings.TrimSpace(get(rec)) }
	encoded := func(class TokenClass) func(Record) (string, bool) {
		return func(rec Record) (string, bool) {
			v := id(rec)
			if !IsLegacyID(v) {
				return "", false
			}
			token, ok := r.encoder.EncodeLegacyID(v, class)
			if !ok || token == "" {
				r.logger().Debug("legacy id encoding failed", "source", source, "class", class)
				return "", false
			}
			return r.links.TokenURL(token, rec.AccountIndex), true
		}
	}
	return []step{
		{source: source, tier: TierNativeToken, run: func(rec Record) (string, bool) {
			v := id(rec)
			if v == "" || IsLegacyID(v) {
				return "", false
			}
			return r.links.TokenURL(v, rec.AccountIndex), true
		}},
		{source: source, tier: TierThreadToken, run: encoded(ClassThread)},
		{source: source, tier: TierMessageToken, run: encoded(ClassMessage)},
	}
}
