package httpsink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/echobox/internal/domain/channel"
	"github.com/Strob0t/echobox/internal/domain/delivery"
)

var testChannel = &channel.Channel{ID: 3, Type: channel.TypeWebhook}

func TestPostSuccess(t *testing.T) {
	var gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Test")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res := Post(context.Background(), srv.Client(), testChannel, Request{
		URL:     srv.URL,
		Body:    []byte(`{"ok":true}`),
		Headers: http.Header{"X-Test": {"yes"}},
	})
	if !res.Success || res.StatusCode != http.StatusAccepted {
		t.Fatalf("expected success with 202, got %+v", res)
	}
	if gotBody != `{"ok":true}` || gotHeader != "yes" {
		t.Fatalf("unexpected request body=%q header=%q", gotBody, gotHeader)
	}
}

func TestPostNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := Post(context.Background(), srv.Client(), testChannel, Request{URL: srv.URL})
	if res.Success || res.Kind != delivery.KindHTTPStatus || res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected http_status failure with 500, got %+v", res)
	}
}

func TestPostTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := Post(context.Background(), srv.Client(), testChannel, Request{URL: srv.URL, Timeout: 50 * time.Millisecond})
	if res.Success || res.Kind != delivery.KindTimeout {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	if res.Error != "request timed out after 50ms" {
		t.Fatalf("unexpected timeout message %q", res.Error)
	}
}

func TestPostTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := Post(context.Background(), http.DefaultClient, testChannel, Request{URL: url})
	if res.Success || res.Kind != delivery.KindTransport || res.Error == "" {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestPostBadURL(t *testing.T) {
	res := Post(context.Background(), http.DefaultClient, testChannel, Request{URL: "://missing-scheme"})
	if res.Success || res.Kind != delivery.KindConfig {
		t.Fatalf("expected config failure, got %+v", res)
	}
}
