package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckURLOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	if err := CheckURL(context.Background(), srv.URL); err != nil {
		t.Fatalf("CheckURL: %v", err)
	}
}

func TestCheckURLToleratesClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	if err := CheckURL(context.Background(), srv.URL); err != nil {
		t.Fatalf("CheckURL should tolerate a 404 from a proxy in front of dispatcharr: %v", err)
	}
}

func TestCheckURLFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := CheckURL(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestCheckURLEmptyURL(t *testing.T) {
	if err := CheckURL(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
