package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_TrimsSlash(t *testing.T) {
	c := New("http://localhost:8080/", "k")
	if c.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v", c.HTTPClient.Timeout)
	}
}

func TestClient_SendsBearerAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Method != http.MethodDelete || r.URL.Path != "/api/links" || r.URL.Query().Get("external_id") != "42" {
			t.Errorf("request = %s %s", r.Method, r.URL)
		}
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "secret").Unlink(context.Background(), "ignored", 42)
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if !resp.OK() || string(resp.Body) != `{"success":true}` {
		t.Errorf("resp = %d %s", resp.StatusCode, resp.Body)
	}
}

func TestClient_LinkByAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account_id") != "acct" || r.URL.Query().Has("external_id") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"linked":false}`)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").Link(context.Background(), "acct", 0)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if resp.OK() || resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClient_IssueCodeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["account_id"] != "a" || body["display_name"] != "Steve" {
			t.Errorf("body = %v", body)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_, _ = io.WriteString(w, `{"code":"ABCD1234"}`)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "k").IssueCode(context.Background(), "a", "Steve")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if !strings.Contains(resp.Indented(), "\n  \"code\": \"ABCD1234\"\n") {
		t.Errorf("Indented = %q", resp.Indented())
	}
}

func TestResponse_IndentedNonJSON(t *testing.T) {
	r := &Response{Body: []byte("plain")}
	if r.Indented() != "plain" {
		t.Errorf("Indented = %q", r.Indented())
	}
}

func TestClient_AuditLimit(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/audit" {
			t.Errorf("path = %s", r.URL.Path)
		}
		queries = append(queries, r.URL.RawQuery)
		_, _ = io.WriteString(w, `{"entries":[]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if _, err := c.Audit(context.Background(), "acct", 0); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if _, err := c.Audit(context.Background(), "acct", 5); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(queries) != 2 || queries[0] != "account_id=acct" || queries[1] != "account_id=acct&limit=5" {
		t.Errorf("queries = %v", queries)
	}
}
