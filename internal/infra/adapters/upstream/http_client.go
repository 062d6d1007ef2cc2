package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.UpstreamClient = (*HTTPClient)(nil)

// HTTPClient performs unauthenticated GETs against the relay targets and
// returns the normalized body. No retries.
type HTTPClient struct {
	client    *http.Client
	maxBody   int64
	userAgent string
	log       *zerolog.Logger
}

func NewHTTPClient(cfg config.UpstreamConfig, logger *zerolog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 4 << 20
	}
	l := logger.With().Str("component", "upstream").Logger()
	return &HTTPClient{
		client:    &http.Client{Timeout: timeout},
		maxBody:   maxBody,
		userAgent: cfg.UserAgent,
		log:       &l,
	}
}

func (c *HTTPClient) Fetch(ctx context.Context, rawURL string) (string, error) {
	target := Requote(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrServiceUnavailable, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrServiceUnavailable, err)
	}
	if int64(len(body)) > c.maxBody {
		body = body[:c.maxBody]
		c.log.Warn().
			Str("host", req.URL.Host).
			Int64("limit", c.maxBody).
			Msg("upstream body truncated")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().
			Str("host", req.URL.Host).
			Int("status", resp.StatusCode).
			Int("bytes", len(body)).
			Msg("upstream returned non-2xx; relaying body")
	}
	return Normalize(body), nil
}

// Normalize turns an upstream body into reply text:
//   - a JSON object with "reply" yields that value
//   - else a JSON object with "url" yields that value
//   - any other JSON is pretty-printed with two-space indentation
//   - anything that is not JSON is returned verbatim
func Normalize(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return string(body)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		if v, ok := obj["reply"]; ok {
			return rawValueText(v)
		}
		if v, ok := obj["url"]; ok {
			return rawValueText(v)
		}
	}

	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}

// rawValueText renders a JSON value as text: strings unquoted, null empty,
// anything else as compact JSON.
func rawValueText(v json.RawMessage) string {
	// An empty reply makes Dispatch answer "service unavailable".
	if string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var out bytes.Buffer
	if err := json.Compact(&out, v); err != nil {
		return string(v)
	}
	return out.String()
}

const hexDigits = "0123456789ABCDEF"

// Requote percent-encodes bytes that cannot appear in a URL (controls, space,
// non-ASCII and a few unsafe ASCII marks) and leaves reserved characters and
// valid %XX escapes untouched.
func Requote(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch == '%' && i+2 < len(raw) && isHex(raw[i+1]) && isHex(raw[i+2]):
			b.WriteByte(ch)
		case ch == '%', ch <= 0x20, ch >= 0x7f, strings.IndexByte("\"<>\\^`{|}", ch) >= 0:
			b.WriteByte('%')
			b.WriteByte(hexDigits[ch>>4])
			b.WriteByte(hexDigits[ch&0x0f])
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
