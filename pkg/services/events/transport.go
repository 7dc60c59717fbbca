package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC of the batch body when the subscription
// has a secret configured.
const SignatureHeader = "X-Catalog-Signature"

// Transport delivers one serialized event batch to a subscriber endpoint and
// reports the HTTP status code. Errors are transport-level failures
// (connection refused, DNS, timeout); any received response is a code.
type Transport interface {
	Send(ctx context.Context, endpoint string, payload []byte, signature string) (int, error)
}

type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a Transport over a plain HTTP client with the
// given per-request timeout. Redirects are not followed: a redirect response
// must surface as its own status code so the state machine can treat it as a
// terminal misconfiguration.
func NewHTTPTransport(timeout time.Duration) Transport {
	return &httpTransport{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

var _ Transport = (*httpTransport)(nil)

func (t *httpTransport) Send(ctx context.Context, endpoint string, payload []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// Sign computes the hex HMAC-SHA256 of the payload under the subscription
// secret, in the "sha256=<hex>" form subscribers verify against.
func Sign(secret string, payload []byte) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
