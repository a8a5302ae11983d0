package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/proxy-vitals/internal/config"
	"github.com/proxy-vitals/internal/metrics"
	"github.com/proxy-vitals/internal/proxyspec"
	"github.com/proxy-vitals/internal/types"
	log "github.com/sirupsen/logrus"
)

const (
	maxRedirects = 5
	maxBodyBytes = 1 << 20 // 1MB is plenty for any identity response
)

// Executor runs the multi-endpoint probe with retry for a single proxy.
type Executor struct {
	config  config.ProbeConfig
	metrics *metrics.Collector
}

func NewExecutor(cfg config.ProbeConfig, metricsCollector *metrics.Collector) *Executor {
	return &Executor{
		config:  cfg,
		metrics: metricsCollector,
	}
}

// Probe verifies one proxy. It walks the configured check endpoints in
// order and returns Success on the first endpoint that yields an identity;
// if the whole list fails it waits the retry delay and restarts the list,
// up to RetryAttempts full passes. One flaky endpoint therefore triggers a
// full-list retry, which keeps failure semantics simple and bounds total
// latency to attempts x endpoints x timeout.
func (e *Executor) Probe(ctx context.Context, spec proxyspec.Spec) types.Outcome {
	// Specs are validated upstream; a zero spec means one slipped past the parser
	if spec.Host == "" || spec.Port == 0 {
		return types.Outcome{
			Proxy:  spec.Raw,
			Alive:  false,
			Reason: types.ReasonInvalidFormat,
			Error:  "unparsed proxy spec",
		}
	}

	client, err := e.clientFor(spec)
	if err != nil {
		return types.Outcome{
			Proxy:  spec.Raw,
			Alive:  false,
			Reason: types.ReasonConnectionError,
			Error:  err.Error(),
		}
	}
	defer client.CloseIdleConnections()

	attempts := e.config.RetryAttempts
	retryDelay := time.Duration(e.config.RetryDelayMs) * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return e.exhausted(spec, attempt-1, lastErr)
			case <-time.After(retryDelay):
			}
		}

		for _, endpoint := range e.config.CheckEndpoints {
			ident, elapsedMs, reason, err := e.checkEndpoint(ctx, client, endpoint)
			if err == nil {
				return types.Outcome{
					Proxy:          spec.Raw,
					Alive:          true,
					IP:             ident.IP,
					Country:        ident.Country,
					City:           ident.City,
					ResponseTimeMs: elapsedMs,
					Endpoint:       endpoint,
				}
			}

			lastErr = err
			if e.metrics != nil {
				e.metrics.RecordEndpointFailure(endpoint, string(reason))
			}
			log.Debugf("Proxy %s endpoint %s failed (attempt %d/%d): %v",
				spec.Addr(), endpoint, attempt, attempts, err)

			if ctx.Err() != nil {
				return e.exhausted(spec, attempt, lastErr)
			}
		}
	}

	return e.exhausted(spec, attempts, lastErr)
}

func (e *Executor) exhausted(spec proxyspec.Spec, attempts int, lastErr error) types.Outcome {
	msg := fmt.Sprintf("no endpoint responded after %d attempts", attempts)
	if lastErr != nil {
		msg = fmt.Sprintf("%s: last error: %v", msg, lastErr)
	}
	return types.Outcome{
		Proxy:  spec.Raw,
		Alive:  false,
		Reason: types.ReasonExhaustedRetries,
		Error:  msg,
	}
}

// checkEndpoint issues one GET through the proxy and tries to extract an
// identity from the response body.
func (e *Executor) checkEndpoint(ctx context.Context, client *http.Client, endpoint string) (Identity, int64, types.FailReason, error) {
	timeout := time.Duration(e.config.TimeoutMs) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", endpoint, nil)
	if err != nil {
		return Identity{}, 0, types.ReasonConnectionError, fmt.Errorf("create request: %w", err)
	}
	if e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, 0, classifyErr(err), fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	elapsedMs := time.Since(start).Milliseconds()

	// 2xx-4xx proves the tunnel works; 5xx is treated as transport failure
	if resp.StatusCode < 200 || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return Identity{}, 0, types.ReasonConnectionError, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Identity{}, 0, classifyErr(err), fmt.Errorf("read body: %w", err)
	}

	ident, ok := ExtractIdentity(body)
	if !ok {
		return Identity{}, 0, types.ReasonNoValidResponse, fmt.Errorf("no identity field in response")
	}

	return ident, elapsedMs, "", nil
}

// clientFor builds the per-proxy HTTP client that tunnels through the spec.
func (e *Executor) clientFor(spec proxyspec.Spec) (*http.Client, error) {
	timeout := time.Duration(e.config.TimeoutMs) * time.Millisecond

	var transport *http.Transport
	if e.config.Protocol == "socks5" {
		t, err := e.socksTransport(spec)
		if err != nil {
			return nil, err
		}
		transport = t
	} else {
		transport = &http.Transport{
			Proxy: http.ProxyURL(spec.URL()),
			DialContext: (&net.Dialer{
				Timeout: timeout,
			}).DialContext,
			ForceAttemptHTTP2:   false,
			TLSHandshakeTimeout: timeout,
			DisableKeepAlives:   true,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}, nil
}

// classifyErr maps a transport error to the failure taxonomy.
func classifyErr(err error) types.FailReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ReasonTimeout
	}
	return types.ReasonConnectionError
}
