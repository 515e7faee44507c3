package intel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testSHA256 = "094fd325049b8a9cf6d3e5ef2a6d4cc52a02bbffa42298d3c20d36a12df85e9d"

func TestMalwareBazaarLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Auth-Key") != "test-key" {
			t.Errorf("missing Auth-Key header, got %q", r.Header.Get("Auth-Key"))
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("query"); got != "get_info" {
			t.Errorf("unexpected query form value %q", got)
		}
		if got := r.PostForm.Get("hash"); got != testSHA256 {
			t.Errorf("unexpected hash form value %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query_status": "ok",
			"data": [{
				"sha256_hash": "` + testSHA256 + `",
				"sha1_hash": "da39a3ee5e6b4b0d3255bfef95601890afd80709",
				"md5_hash": "d41d8cd98f00b204e9800998ecf8427e",
				"file_name": "invoice.exe",
				"file_size": 1337,
				"file_type": "exe",
				"file_type_mime": "application/x-dosexec",
				"signature": "AgentTesla",
				"first_seen": "2024-01-15 09:01:44",
				"last_seen": "2024-02-20 17:30:00",
				"delivery_method": "email_attachment",
				"tags": ["exe", "AgentTesla"]
			}]
		}`))
	}))
	defer server.Close()

	client := NewMalwareBazaarClient("test-key")
	client.baseURL = server.URL

	rep, err := client.Lookup(context.Background(), testSHA256)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if rep.Source != "MalwareBazaar" || rep.Kind != KindHash {
		t.Errorf("unexpected report header: source=%q kind=%q", rep.Source, rep.Kind)
	}
	sig := findRow(t, rep, "Signature")
	if sig.Value != "AgentTesla" || sig.Tone != ToneBad {
		t.Errorf("signature row = %+v, want AgentTesla bad", sig)
	}
	if got := findRow(t, rep, "File Type").Value; got != "exe (application/x-dosexec)" {
		t.Errorf("file type = %q", got)
	}
	if got := findRow(t, rep, "File Size").Value; got != "1.3 kB" {
		t.Errorf("file size = %q, want 1.3 kB", got)
	}
	if got := findRow(t, rep, "Delivery").Value; got != "email_attachment" {
		t.Errorf("delivery = %q", got)
	}
}

func TestMalwareBazaarMissingKey(t *testing.T) {
	client := NewMalwareBazaarClient("")

	_, err := client.Lookup(context.Background(), testSHA256)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "ACH_API_KEY") {
		t.Errorf("error should name the missing key, got %q", err)
	}
}

func TestMalwareBazaarNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "hash_not_found"}`))
	}))
	defer server.Close()

	client := NewMalwareBazaarClient("test-key")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), testSHA256)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMalwareBazaarEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query_status": "ok", "data": []}`))
	}))
	defer server.Close()

	client := NewMalwareBazaarClient("test-key")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), testSHA256)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMalwareBazaarServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewMalwareBazaarClient("test-key")
	client.baseURL = server.URL

	_, err := client.Lookup(context.Background(), testSHA256)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
