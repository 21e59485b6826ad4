package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestFetcher_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	body, size, err := NewFetcher().Open(context.Background(), srv.URL+"/v.mp4", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "video-bytes" {
		t.Errorf("unexpected body %q", data)
	}
	if size != int64(len("video-bytes")) {
		t.Errorf("expected size %d, got %d", len("video-bytes"), size)
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "file expired", http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := NewFetcher().Open(context.Background(), srv.URL+"/gone.mp4", "")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Body != "file expired" {
		t.Errorf("unexpected status error %+v", statusErr)
	}
}

func TestFetcher_KeyOnlySentToKeyHost(t *testing.T) {
	keys := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get(apiKeyHeader)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)

	body, _, err := NewFetcher().Open(context.Background(), srv.URL, "secret")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body.Close()
	if gotKey := <-keys; gotKey != "" {
		t.Errorf("API key leaked to foreign host: %q", gotKey)
	}

	body, _, err = NewFetcher(WithKeyHost(u.Hostname())).Open(context.Background(), srv.URL, "secret")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body.Close()
	if gotKey := <-keys; gotKey != "secret" {
		t.Errorf("expected API key on key host, got %q", gotKey)
	}
}

func TestFetcher_RejectsUnsupportedScheme(t *testing.T) {
	if _, _, err := NewFetcher().Open(context.Background(), "file:///etc/passwd", ""); err == nil {
		t.Error("expected error for file scheme")
	}
}
