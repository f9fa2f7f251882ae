// Package reachability provides a client for the messaging-network
// contact-check API, with multi-credential failover.
package reachability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadfactor/enrich-cli/internal/phone"
)

// ErrUnavailable signals every credential was rejected, so no reachability
// information could be obtained. The caller proceeds with unannotated
// numbers; this is distinct from confirmed-unreachable.
var ErrUnavailable = eris.New("reachability: all credentials exhausted")

// Client defines the batched contact-check operation.
type Client interface {
	// Check queries every candidate in one call and returns a map from
	// each original candidate to whether it is reachable.
	Check(ctx context.Context, candidates []string) (map[string]bool, error)
}

type contactRequest struct {
	Blocking bool     `json:"blocking"`
	Contacts []string `json:"contacts"`
}

type contactResponse struct {
	Contacts []contactEntry `json:"contacts"`
}

type contactEntry struct {
	Input  string `json:"input"`
	WAID   string `json:"wa_id"`
	Status string `json:"status"`
}

// Option configures the reachability client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	url    string
	tokens []string
	http   *http.Client
}

// NewClient creates a reachability client. tokens are tried in order until
// one yields a usable response.
func NewClient(url string, tokens []string, opts ...Option) Client {
	c := &httpClient{
		url:    url,
		tokens: tokens,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// credentialRejected reports status codes that mean "try the next token"
// rather than "the batch failed".
func credentialRejected(code int) bool {
	return code == http.StatusUnauthorized ||
		code == http.StatusForbidden ||
		code == http.StatusTooManyRequests
}

func (c *httpClient) Check(ctx context.Context, candidates []string) (map[string]bool, error) {
	if len(c.tokens) == 0 {
		return nil, ErrUnavailable
	}

	contacts := make([]string, len(candidates))
	for i, cand := range candidates {
		contacts[i] = phone.WithCountryCode(cand)
	}

	payload, err := json.Marshal(contactRequest{Blocking: true, Contacts: contacts})
	if err != nil {
		return nil, eris.Wrap(err, "reachability: marshal request")
	}

	for i, token := range c.tokens {
		body, status, err := c.post(ctx, token, payload)
		if err != nil {
			return nil, err
		}
		if credentialRejected(status) {
			zap.L().Warn("reachability: credential rejected, trying next",
				zap.Int("credential", i+1),
				zap.Int("status", status),
			)
			continue
		}
		if status != http.StatusOK {
			return nil, eris.Errorf("reachability: unexpected status %d: %s", status, string(body))
		}

		var resp contactResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, eris.Wrap(err, "reachability: unmarshal response")
		}
		return matchContacts(candidates, resp.Contacts), nil
	}

	return nil, ErrUnavailable
}

func (c *httpClient) post(ctx context.Context, token string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, eris.Wrap(err, "reachability: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "reachability: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "reachability: read response body")
	}
	return body, resp.StatusCode, nil
}

// matchContacts maps each original candidate to reachable. A candidate
// matches an entry when the entry's input echo or provider id, stripped to
// digits and to national form, equals the candidate's national form, and
// the entry's status does not deny existence. Either field matching
// suffices.
func matchContacts(candidates []string, entries []contactEntry) map[string]bool {
	result := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		result[cand] = false
		target := phone.TrimCountryCode(cand)
		for _, e := range entries {
			if !exists(e.Status) {
				continue
			}
			input := phone.TrimCountryCode(phone.Digits(e.Input))
			waID := phone.TrimCountryCode(phone.Digits(e.WAID))
			if input == target || waID == target {
				result[cand] = true
				break
			}
		}
	}
	return result
}

func exists(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "non-existing", "non_existing", "invalid":
		return false
	default:
		return true
	}
}
