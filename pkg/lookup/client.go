// Package lookup provides a client for the CPF identity-enrichment API.
package lookup

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/leadfactor/enrich-cli/internal/resilience"
)

// ErrNoData signals the provider reported no data for the identifier. The
// caller decides whether that makes the record worth keeping.
var ErrNoData = eris.New("lookup: provider has no data for identifier")

// ErrSkipped signals the lookup was not performed because the record is
// already enriched and Force was not set.
var ErrSkipped = eris.New("lookup: skipped, record already enriched")

// Request identifies one CPF to enrich, with the caller's knowledge of the
// record used for the skip decision.
type Request struct {
	CPF        string
	KnownName  bool
	KnownPhone bool
	// Force performs the remote call even when name and phone are known.
	Force bool
}

// Result is the normalized enrichment payload for one CPF.
type Result struct {
	CPF       string           `json:"cpf"`
	Name      string           `json:"name,omitempty"`
	BirthDate string           `json:"birth_date,omitempty"` // ISO, or raw when unparsable
	Income    *decimal.Decimal `json:"income,omitempty"`
	Score     *int             `json:"score,omitempty"`
	Phones    []string         `json:"phones,omitempty"` // raw, pre-normalization
}

// Client defines the identity lookup operation.
type Client interface {
	// Lookup enriches one CPF. Returns ErrSkipped when the request allows
	// skipping, ErrNoData when the provider reports no data.
	Lookup(ctx context.Context, req Request) (*Result, error)
}

// Option configures the lookup client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryPolicy overrides the transient-retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

type httpClient struct {
	urlTemplate string
	token       string
	module      string
	http        *http.Client
	retry       resilience.Policy
}

// NewClient creates a lookup client. urlTemplate carries {token}, {module}
// and {cpf} placeholders substituted per request.
func NewClient(urlTemplate, token, module string, opts ...Option) Client {
	c := &httpClient{
		urlTemplate: urlTemplate,
		token:       token,
		module:      module,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.Policy{Attempts: 3, BaseDelay: time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) requestURL(cpf string) string {
	r := strings.NewReplacer("{token}", c.token, "{module}", c.module, "{cpf}", cpf)
	return r.Replace(c.urlTemplate)
}

func (c *httpClient) Lookup(ctx context.Context, req Request) (*Result, error) {
	if !req.Force && req.KnownName && req.KnownPhone {
		return nil, ErrSkipped
	}

	// Status classification happens inside the retry loop: an app-level
	// 5xx is transient and gets retried like a transport failure.
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Result, error) {
		body, err := c.fetch(ctx, req.CPF)
		if err != nil {
			return nil, err
		}

		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, eris.Wrap(err, "lookup: unmarshal response")
		}

		// The provider reports its own status separately from the HTTP code.
		status, ok := applicationStatus(raw)
		switch {
		case !ok:
			return nil, eris.New("lookup: response missing status field")
		case status >= 500:
			return nil, resilience.Transient(eris.Errorf("lookup: provider status %d", status), status)
		case status != http.StatusOK:
			return nil, eris.Wrapf(ErrNoData, "provider status %d", status)
		}

		return parseResult(req.CPF, raw), nil
	})
}

func (c *httpClient) fetch(ctx context.Context, cpf string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(cpf), nil)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: create request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("lookup: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	return body, nil
}
