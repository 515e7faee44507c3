package intel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestURLHausLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/url/" {
			t.Errorf("expected /url/, got %s", r.URL.Path)
		}
		if r.Header.Get("Auth-Key") != "test-key" {
			t.Errorf("missing Auth-Key header, got %q", r.Header.Get("Auth-Key"))
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("url"); got != "http://evil.example/payload.exe" {
			t.Errorf("unexpected url form value %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query_status": "ok",
			"url_status": "online",
			"host": "evil.example",
			"date_added": "2024-02-12 07:15:02 UTC",
			"threat": "malware_download",
			"reporter": "abuse_ch",
			"tags": ["exe", "Mozi"],
			"payloads": [
				{"filename": "payload.exe", "file_type": "exe", "response_sha256": "aaaa"},
				{"filename": "drop.bin", "file_type": "elf", "sha256_hash": "bbbb"}
			]
		}`))
	}))
	defer server.Close()

	client := NewURLHausClient("test-key")
	client.baseURL = server.URL

	rep, err := client.Lookup(context.Background(), "http://evil.example/payload.exe")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if rep.Source != "URLHaus" || rep.Kind != KindURL {
		t.Errorf("unexpected report header: source=%q kind=%q", rep.Source, rep.Kind)
	}
	status := findRow(t, rep, "Status")
	if status.Value != "online" || status.Tone != ToneBad {
		t.Errorf("status row = %+v, want online bad", status)
	}
	if got := findRow(t, rep, "Threat").Value; got != "malware_download" {
		t.Errorf("threat = %q", got)
	}
	if got := findRow(t, rep, "Tags").Value; got != "exe, Mozi" {
		t.Errorf("tags = %q", got)
	}
	if len(rep.Details) != 2 {
		t.Fatalf("expected 2 payload lines, got %d", len(rep.Details))
	}
	if !strings.Contains(rep.Details[0], "aaaa") {
		t.Errorf("first payload should use response_sha256, got %q", rep.Details[0])
	}
	if !strings.Contains(rep.Details[1], "bbbb") {
		t.Errorf("second payload should fall back to sha256_hash, got %q", rep.Details[1])
	}
}

func TestURLHausOfflineTone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "ok", "url_status": "offline", "host": "evil.example"}`))
	}))
	defer server.Close()

	client := NewURLHausClient("test-key")
	client.baseURL = server.URL

	rep, err := client.Lookup(context.Background(), "http://evil.example/x")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got := findRow(t, rep, "Status").Tone; got != ToneWarn {
		t.Errorf("offline tone = %v, want warn", got)
	}
}

func TestURLHausAnonymousQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Auth-Key"]; ok {
			t.Error("anonymous query must not send Auth-Key")
		}
		w.Write([]byte(`{"query_status": "no_results"}`))
	}))
	defer server.Close()

	client := NewURLHausClient("")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), "http://clean.example/")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestURLHausNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "no_results"}`))
	}))
	defer server.Close()

	client := NewURLHausClient("test-key")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), "http://clean.example/")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("no_results must not read as unavailable")
	}
}

func TestURLHausQueryStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "invalid_url"}`))
	}))
	defer server.Close()

	client := NewURLHausClient("test-key")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), "http://bad")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_url") {
		t.Errorf("error should carry query_status, got %q", err)
	}
}

func TestURLHausServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewURLHausClient("test-key")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), "http://evil.example/x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
