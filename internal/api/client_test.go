package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"quire/internal/api"
	"quire/internal/services"
)

func TestStatusErrorUnwrap(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusBadRequest, services.ErrValidation},
		{http.StatusServiceUnavailable, services.ErrTransient},
		{http.StatusConflict, nil},
	}
	for _, tc := range tests {
		err := error(&api.StatusError{Code: tc.code, Message: "x"})
		if tc.want == nil {
			if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
				t.Fatalf("code %d should not map to a service marker", tc.code)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %d: expected %v", tc.code, tc.want)
		}
	}
}

func TestClientDecodesErrorResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "project not found"})
	}))
	defer server.Close()

	client, err := api.NewClient(server.URL, " tok ")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Status(context.Background(), "missing")
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Message != "project not found" {
		t.Fatalf("unexpected error %v", err)
	}
	if !errors.Is(err, services.ErrNotFound) || api.IsUnavailable(err) {
		t.Fatalf("404 should be not-found and not unavailable: %v", err)
	}
}

func TestIsUnavailable(t *testing.T) {
	if _, err := api.NewClient(" ", ""); !api.IsUnavailable(err) {
		t.Fatalf("empty base url should be unavailable, got %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client, err := api.NewClient(addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Daemon(context.Background()); !api.IsUnavailable(err) {
		t.Fatalf("closed port should be unavailable, got %v", err)
	}
	if api.IsUnavailable(nil) || api.IsUnavailable(errors.New("other")) {
		t.Fatal("unexpected unavailable classification")
	}
}

func TestParseArtifactQuery(t *testing.T) {
	q, err := api.ParseArtifactQuery(url.Values{
		"partition": {" content "},
		"type":      {"chapter"},
		"q":         {"unit:2"},
		"limit":     {"5"},
		"text":      {"true"},
	})
	if err != nil {
		t.Fatalf("ParseArtifactQuery: %v", err)
	}
	want := api.ArtifactQuery{Partition: "content", Type: "chapter", Query: "unit:2", Limit: 5, Text: true}
	if q != want {
		t.Fatalf("got %+v, want %+v", q, want)
	}

	for _, bad := range []string{"-1", "ten"} {
		if _, err := api.ParseArtifactQuery(url.Values{"limit": {bad}}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("limit %q: expected validation error, got %v", bad, err)
		}
	}
}
