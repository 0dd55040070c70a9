package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/luma/beacon/protocol"
	"go.uber.org/zap"
)

// Request is the stateless transport: one HTTP POST per command against
// a fixed command endpoint, no retained session, no retries.
type Request struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	log      *zap.Logger

	commands *metrics.Counter
	failures *metrics.Counter
}

// NewRequest builds a request transport for an http or https URL. A URL
// without an explicit path posts to /command.
func NewRequest(rawURL string, options Options) (*Request, error) {
	options = options.withDefaults()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", protocol.ErrConnection, rawURL, err)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/command"
	}

	return &Request{
		endpoint: u.String(),
		timeout:  options.RequestTimeout,
		log:      options.Log.Named("request"),
		client: &http.Client{
			Timeout: options.RequestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: options.TLSConfig,
			},
		},
		commands: metrics.GetOrCreateCounter(`beacon_commands_total{transport="request"}`),
		failures: metrics.GetOrCreateCounter(`beacon_command_errors_total{transport="request"}`),
	}, nil
}

func (t *Request) Execute(ctx context.Context, command string, headers map[string]string) (*Response, error) {
	t.commands.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(command))
	if err != nil {
		t.failures.Inc()
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	req.Header.Set("Content-Type", "text/plain")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.failures.Inc()

		if isTimeout(err) {
			return nil, fmt.Errorf("%w: request timed out after %s", protocol.ErrConnection, t.timeout)
		}

		// Refused, unreachable, TLS failure: all network-level failures
		// surface uniformly.
		return nil, fmt.Errorf("%w: %v", protocol.ErrConnection, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.failures.Inc()
		return nil, fmt.Errorf("%w: reading response body: %v", protocol.ErrConnection, err)
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		responseHeaders[key] = resp.Header.Get(key)
	}

	t.log.Debug("Executed command",
		zap.Int("status", resp.StatusCode),
		zap.Int("bodyBytes", len(body)))

	return &Response{
		Status:  resp.StatusCode,
		Body:    string(body),
		Headers: responseHeaders,
	}, nil
}

// Close is a no-op: there is nothing stateful to tear down.
func (t *Request) Close() error {
	return nil
}

func (t *Request) Kind() Kind {
	return KindRequest
}

func isTimeout(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return os.IsTimeout(err)
}
