package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/josh-kwaku/settlement/internal/logging"
)

type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

func NewNotifier(baseURL, secret string, timeout time.Duration) *Notifier {
	return &Notifier{
		url:    strings.TrimRight(baseURL, "/") + Path,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Notify delivers one signed callback. Any non-2xx answer is an error; the
// caller decides whether that matters.
func (n *Notifier) Notify(ctx context.Context, b Body) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("Notify: marshal: %w", err)
	}

	ts := n.now().Unix()
	sig := Sign(n.secret, Payload(b.OrderCode, b.Status, ts))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Notify: send: %w", err)
	}
	defer resp.Body.Close()

	log.Info("order callback delivered",
		"order_code", b.OrderCode,
		"status", b.Status,
		"http_status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Notify: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
