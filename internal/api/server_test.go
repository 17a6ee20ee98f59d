package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/mail-deeplink/internal"
	"github.com/MagnunAVF/mail-deeplink/internal/accounts"
	"github.com/MagnunAVF/mail-deeplink/internal/store"
)

const (
	hexID       = "18f3a2b4c5d6e7f8"
	threadToken = "FMfcgzGxSvBlvhsxTlfNTwXWXzTqMvrQ"
)

type fakeRecords map[string]internal.MailRecord

func (f fakeRecords) FindRecord(_ context.Context, id string) (*internal.MailRecord, error) {
	rec, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

type fakeAccounts struct {
	mu      sync.Mutex
	indexes map[string]int
	err     error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{indexes: map[string]int{}}
}

func (f *fakeAccounts) Index(_ context.Context, address string) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	idx, ok := f.indexes[address]
	if !ok {
		return nil, nil
	}
	return &idx, nil
}

func (f *fakeAccounts) SetIndex(_ context.Context, address string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 {
		return accounts.ErrInvalidIndex
	}
	f.indexes[address] = index
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexes, address)
	return nil
}

type fakePublisher struct {
	events chan internal.LinkOpenEvent
}

func (f *fakePublisher) PublishLinkOpen(_ context.Context, event internal.LinkOpenEvent) error {
	f.events <- event
	return nil
}

func newTestServer() (*Server, *fakeAccounts, *fakePublisher) {
	received := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	acc := newFakeAccounts()
	pub := &fakePublisher{events: make(chan internal.LinkOpenEvent, 4)}
	s := &Server{
		Resolver: internal.NewResolver(internal.LinkBuilder{}, nil),
		Records: fakeRecords{
			"rec-hex": {ID: "rec-hex", AccountAddress: "agent@example.com", GmailMessageID: hexID},
			"rec-meta": {
				ID:          "rec-meta",
				Subject:     "Offer",
				FromAddress: "buyer@example.com",
				ReceivedAt:  &received,
			},
			"rec-empty": {ID: "rec-empty"},
		},
		Accounts: acc,
		Events:   pub,
		Now:      func() time.Time { return received },
	}
	return s, acc, pub
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestResolve_HexID(t *testing.T) {
	s, _, _ := newTestServer()

	resp, body := doRequest(t, s, http.MethodPost, "/links/resolve", `{"message_id":"`+hexID+`","account_index":1}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://mail.google.com/mail/u/1/#all/"+threadToken, body["url"])
	assert.Equal(t, "token", body["kind"])
	assert.Equal(t, "thread_token", body["tier"])
	assert.Equal(t, "primary", body["source"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestResolve_AccountLookup(t *testing.T) {
	s, acc, _ := newTestServer()
	acc.indexes["agent@example.com"] = 3

	_, body := doRequest(t, s, http.MethodPost, "/links/resolve", `{"message_id":"`+hexID+`","account":"agent@example.com"}`)

	assert.Equal(t, "https://mail.google.com/mail/u/3/#all/"+threadToken, body["url"])
}

func TestResolve_AccountLookupFailureDropsScope(t *testing.T) {
	s, acc, _ := newTestServer()
	acc.err = errors.New("redis down")

	resp, body := doRequest(t, s, http.MethodPost, "/links/resolve", `{"message_id":"`+hexID+`","account":"agent@example.com"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://mail.google.com/mail/#all/"+threadToken, body["url"])
}

func TestResolve_NoLink(t *testing.T) {
	s, _, _ := newTestServer()

	resp, body := doRequest(t, s, http.MethodPost, "/links/resolve", `{"message_id":"xyz@@ not hex","thread_id":""}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "non-hex ids pass through as native tokens")

	resp, body = doRequest(t, s, http.MethodPost, "/links/resolve", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_link_available", body["code"])
}

func TestResolve_BadRequests(t *testing.T) {
	s, _, _ := newTestServer()

	resp, body := doRequest(t, s, http.MethodPost, "/links/resolve", `{"message_id":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["code"])

	resp, body = doRequest(t, s, http.MethodPost, "/links/resolve", `{"message_id":"`+hexID+`","account_index":-2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_account_index", body["code"])
}

func TestRecordLink(t *testing.T) {
	s, acc, _ := newTestServer()
	acc.indexes["agent@example.com"] = 0

	resp, body := doRequest(t, s, http.MethodGet, "/records/rec-hex/link", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#all/"+threadToken, body["url"])

	resp, body = doRequest(t, s, http.MethodGet, "/records/rec-meta/link", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "search", body["kind"])
	assert.Equal(t, "https://mail.google.com/mail/#search/from%3Abuyer%40example.com%20subject%3A%22Offer%22%20after%3A2026%2F05%2F09%20before%3A2026%2F05%2F11", body["url"])

	resp, body = doRequest(t, s, http.MethodGet, "/records/rec-empty/link", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_link_available", body["code"])

	resp, body = doRequest(t, s, http.MethodGet, "/records/missing/link", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "record_not_found", body["code"])
}

func TestRecordOpen_RedirectsAndPublishes(t *testing.T) {
	s, _, pub := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/records/rec-hex/open", nil)
	req.Header.Set("User-Agent", "crm-dashboard")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://mail.google.com/mail/#all/"+threadToken, resp.Header.Get("Location"))

	select {
	case ev := <-pub.events:
		assert.Equal(t, "rec-hex", ev.RecordID)
		assert.Equal(t, internal.TierThreadToken, ev.Tier)
		assert.Equal(t, internal.SourcePrimary, ev.Source)
		assert.Equal(t, "crm-dashboard", ev.UserAgent)
	case <-time.After(2 * time.Second):
		t.Fatal("link open event was not published")
	}
}

func TestRecordOpen_NoLinkDoesNotPublish(t *testing.T) {
	s, _, pub := newTestServer()

	resp, _ := doRequest(t, s, http.MethodGet, "/records/rec-empty/open", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, pub.events)
}

func TestAccountIndexEndpoints(t *testing.T) {
	s, _, _ := newTestServer()

	resp, body := doRequest(t, s, http.MethodPut, "/accounts/agent%40example.com/index", `{"index":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "agent@example.com", body["address"])

	resp, body = doRequest(t, s, http.MethodGet, "/accounts/agent@example.com/index", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["index"])

	resp, _ = doRequest(t, s, http.MethodDelete, "/accounts/agent@example.com/index", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doRequest(t, s, http.MethodGet, "/accounts/agent@example.com/index", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "account_index_not_found", body["code"])

	resp, body = doRequest(t, s, http.MethodPut, "/accounts/agent@example.com/index", `{"index":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_account_index", body["code"])

	resp, body = doRequest(t, s, http.MethodPut, "/accounts/agent@example.com/index", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["code"])
}

func TestAccountEndpoints_WithoutRegistry(t *testing.T) {
	s, _, _ := newTestServer()
	s.Accounts = nil

	resp, body := doRequest(t, s, http.MethodGet, "/accounts/agent@example.com/index", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "accounts_unavailable", body["code"])
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer()

	resp, body := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
