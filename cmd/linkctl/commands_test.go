package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestLinkctl_Stats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" || r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("request = %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `{"total_links":3}`)
	}))
	defer srv.Close()

	out, err := execute(t, "stats", "--url", srv.URL, "--api-key", "k")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, `"total_links": 3`) {
		t.Errorf("out = %q", out)
	}
}

func TestLinkctl_NonSuccessExitsWithStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"linked":false}`)
	}))
	defer srv.Close()

	out, err := execute(t, "check", "--url", srv.URL, "--external", "7")
	var se statusError
	if !errors.As(err, &se) || se.code != http.StatusNotFound {
		t.Fatalf("err = %v, want statusError 404", err)
	}
	if !strings.Contains(out, `"linked": false`) {
		t.Errorf("out = %q", out)
	}
}

func TestLinkctl_CheckRequiresSelector(t *testing.T) {
	if _, err := execute(t, "check", "--url", "http://127.0.0.1:1"); err == nil {
		t.Fatal("expected error without --account or --external")
	}
}

func TestLinkctl_CodeRequiresFlags(t *testing.T) {
	if _, err := execute(t, "code", "--account", "a"); err == nil {
		t.Fatal("expected error without --name")
	}
}

func TestLinkctl_URLFromEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"OK"}`)
	}))
	defer srv.Close()
	t.Setenv("LINKCTL_URL", srv.URL)

	out, err := execute(t, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, `"status": "OK"`) {
		t.Errorf("out = %q", out)
	}
}
