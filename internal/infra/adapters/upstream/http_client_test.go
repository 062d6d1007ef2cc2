//go:build !integration

package upstream

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/infra/logging"

	"github.com/rs/zerolog"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"reply string", `{"reply":"hello","url":"x"}`, "hello"},
		{"reply number", `{"reply":42}`, "42"},
		{"reply object", `{"reply":{"a": 1}}`, `{"a":1}`},
		{"url only", `{"url":"https://cdn/x.mp4"}`, "https://cdn/x.mp4"},
		{"other object", `{"b":1,"a":[1,2]}`, "{\n  \"b\": 1,\n  \"a\": [\n    1,\n    2\n  ]\n}"},
		{"array", `[1]`, "[\n  1\n]"},
		{"plain text", "not json at all", "not json at all"},
		{"empty", "", ""},
		{"null reply", `{"reply":null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize([]byte(tt.body)); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestRequote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://h/?prompt=hi there", "https://h/?prompt=hi%20there"},
		{"https://h/?url=https://a.b/c?d=1&e=2", "https://h/?url=https://a.b/c?d=1&e=2"},
		{"https://h/?q=caf\xc3\xa9", "https://h/?q=caf%C3%A9"},
		{"https://h/?q=100%", "https://h/?q=100%25"},
		{"https://h/?q=a%20b", "https://h/?q=a%20b"},
		{"https://h/?q={x}", "https://h/?q=%7Bx%7D"},
	}
	for _, tt := range tests {
		if got := Requote(tt.in); got != tt.want {
			t.Errorf("Requote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTTPClient_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("unexpected Authorization header")
		}
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"reply":"pong"}`))
		case "/err":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		default:
			_, _ = w.Write([]byte("plain"))
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(config.UpstreamConfig{Timeout: 2 * time.Second}, logging.Nop())

	t.Run("json reply", func(t *testing.T) {
		got, err := c.Fetch(context.Background(), srv.URL+"/json?prompt=hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "pong" {
			t.Errorf("got %q, want pong", got)
		}
		if gotQuery != "prompt=hello%20world" {
			t.Errorf("query = %q", gotQuery)
		}
	})

	t.Run("non-2xx body is relayed", func(t *testing.T) {
		got, err := c.Fetch(context.Background(), srv.URL+"/err")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "upstream down" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		_, err := c.Fetch(context.Background(), "http://127.0.0.1:1/nothing")
		if !errors.Is(err, domain.ErrServiceUnavailable) {
			t.Errorf("err = %v, want ErrServiceUnavailable", err)
		}
	})
}

func TestHTTPClient_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			_, _ = w.Write([]byte("0123"))
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	c := NewHTTPClient(config.UpstreamConfig{MaxBodyBytes: 4}, &logger)

	got, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0123" {
		t.Errorf("got %q, want 0123", got)
	}
	if !strings.Contains(buf.String(), "upstream body truncated") {
		t.Errorf("expected a truncation warning, log = %q", buf.String())
	}

	buf.Reset()
	if got, _ := c.Fetch(context.Background(), srv.URL+"/short"); got != "0123" {
		t.Errorf("got %q, want 0123", got)
	}
	if strings.Contains(buf.String(), "truncated") {
		t.Errorf("body at the limit must not warn, log = %q", buf.String())
	}
}

type slowClient struct {
	inFlight, peak int32
}

func (s *slowClient) Fetch(ctx context.Context, url string) (string, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
	return "ok", nil
}

func TestLimitedClient(t *testing.T) {
	inner := &slowClient{}
	c := NewLimitedClient(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Fetch(context.Background(), "x")
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&inner.peak); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	full := NewLimitedClient(inner, 1).(*limitedClient)
	full.sem <- struct{}{}
	if _, err := full.Fetch(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
