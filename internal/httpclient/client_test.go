package httpclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetJSONRefreshesTokenOnce(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/api-token-auth/", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("/torrents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token tok-1" {
			t.Errorf("missing/wrong Authorization header: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode([]string{"a", "b"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "u", "p", "/auth/api-token-auth/", time.Hour, 5*time.Second)

	var names []string
	if err := c.GetJSON("/torrents/", &names); err != nil {
		t.Fatal(err)
	}
	if err := c.GetJSON("/torrents/", &names); err != nil {
		t.Fatal(err)
	}
	if tokenCalls != 1 {
		t.Fatalf("expected exactly one token POST for two requests within TTL, got %d", tokenCalls)
	}
}

func TestForbiddenInvalidatesTokenExactlyOnce(t *testing.T) {
	tokenCalls := 0
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/api-token-auth/", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/torrents/", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode([]string{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "u", "p", "/auth/api-token-auth/", time.Hour, 5*time.Second)

	var out []string
	if err := c.GetJSON("/torrents/", &out); err == nil {
		t.Fatal("expected error on first (403) call")
	}
	if err := c.GetJSON("/torrents/", &out); err != nil {
		t.Fatal(err)
	}
	if tokenCalls != 2 {
		t.Fatalf("expected token refresh both before the 403 and after invalidation, got %d calls", tokenCalls)
	}
}

func TestRangeStreamRequiresPartialContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/api-token-auth/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/download/chunk/", func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng != "bytes=10-" {
			t.Errorf("unexpected Range header: %q", rng)
		}
		w.WriteHeader(http.StatusOK) // not 206
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, "u", "p", "/auth/api-token-auth/", time.Hour, 5*time.Second)
	_, err := c.RangeStream("/download/chunk/", 10, -1)
	if err == nil {
		t.Fatal("expected error for non-206 response")
	}
	herr, ok := err.(*Error)
	if !ok || herr.Kind != ErrBadStatus {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
}
