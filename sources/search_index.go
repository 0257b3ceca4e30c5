package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/kpreconcile/internal/circuitbreaker"
	"github.com/BaSui01/kpreconcile/internal/retry"
	"github.com/BaSui01/kpreconcile/internal/tlsutil"
	"github.com/BaSui01/kpreconcile/types"
)

// SearchIndexConfig configures the status search index adapter.
type SearchIndexConfig struct {
	BaseURL          string        `json:"base_url"`          // Search cluster base URL
	Index            string        `json:"index"`             // Pre-provisioned status index
	Username         string        `json:"username"`          // Basic auth user (optional)
	Password         string        `json:"-"`                 // Basic auth password
	APIKey           string        `json:"-"`                 // "ApiKey" auth, takes precedence over basic auth
	PageSize         int           `json:"page_size"`         // Max documents per pipeline
	Timeout          time.Duration `json:"timeout"`           // Per-attempt timeout
	MaxRetries       int           `json:"max_retries"`       // Retries within one query
	QPS              float64       `json:"qps"`               // Outbound query rate, 0 disables limiting
	Burst            int           `json:"burst"`             // Limiter burst
	BreakerThreshold int           `json:"breaker_threshold"` // Consecutive failures before opening
	BreakerReset     time.Duration `json:"breaker_reset"`     // Open -> half-open delay
}

// DefaultSearchIndexConfig returns sensible defaults for status queries.
func DefaultSearchIndexConfig() SearchIndexConfig {
	return SearchIndexConfig{
		BaseURL:          "http://localhost:9200",
		Index:            "pipeline-status",
		PageSize:         1000,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		QPS:              20,
		Burst:            5,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}
}

// SearchIndexOption customizes a SearchIndexSource.
type SearchIndexOption func(*SearchIndexSource)

// WithSearchHTTPClient overrides the HTTP client.
func WithSearchHTTPClient(client *http.Client) SearchIndexOption {
	return func(s *SearchIndexSource) { s.caller.client = client }
}

// WithSearchObserver reports every request to observer.
func WithSearchObserver(observer RequestObserver) SearchIndexOption {
	return func(s *SearchIndexSource) { s.caller.observer = observer }
}

// WithSearchBreakerHook is called on every breaker state change.
func WithSearchBreakerHook(hook func(name string, from, to circuitbreaker.State)) SearchIndexOption {
	return func(s *SearchIndexSource) { s.breakerHook = hook }
}

// SearchIndexSource queries partial status documents from an
// Elasticsearch/OpenSearch compatible _search endpoint.
type SearchIndexSource struct {
	config      SearchIndexConfig
	caller      *httpCaller
	retryer     *retry.Retryer
	breaker     *circuitbreaker.Breaker
	breakerHook func(name string, from, to circuitbreaker.State)
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewSearchIndexSource creates a new status search index adapter.
func NewSearchIndexSource(config SearchIndexConfig, logger *zap.Logger, opts ...SearchIndexOption) *SearchIndexSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PageSize <= 0 {
		config.PageSize = 1000
	}
	logger = logger.With(zap.String("source", "status"))

	s := &SearchIndexSource{
		config: config,
		caller: &httpCaller{
			source:  "status",
			client:  tlsutil.SecureHTTPClient(config.Timeout),
			timeout: config.Timeout,
			logger:  logger,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = config.MaxRetries
	policy.Retryable = types.IsRetryable
	s.retryer = retry.New(policy, logger)

	s.breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:          "status",
		Threshold:     config.BreakerThreshold,
		ResetTimeout:  config.BreakerReset,
		OnStateChange: s.breakerHook,
	}, logger)

	if config.QPS > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.QPS), burst)
	}
	return s
}

// Name returns the data source name.
func (s *SearchIndexSource) Name() string { return "status" }

// Breaker exposes the circuit breaker state for health reporting.
func (s *SearchIndexSource) Breaker() *circuitbreaker.Breaker { return s.breaker }

type termQuery struct {
	Query struct {
		Term map[string]string `json:"term"`
	} `json:"query"`
	Size int `json:"size"`
}

// searchResponse keeps each _source raw so one malformed document cannot
// fail the whole response.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// QueryStatus returns up to PageSize status documents whose index_name equals indexName.
func (s *SearchIndexSource) QueryStatus(ctx context.Context, indexName string) ([]StatusDocument, error) {
	if strings.TrimSpace(indexName) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "index name is required").WithSource("status")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("status query rate limiter: %w", err)
		}
	}

	var q termQuery
	q.Query.Term = map[string]string{"index_name": indexName}
	q.Size = s.config.PageSize
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode status query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/_search",
		strings.TrimRight(s.config.BaseURL, "/"), url.PathEscape(s.config.Index))

	body, err := circuitbreaker.Call(ctx, s.breaker, func(ctx context.Context) ([]byte, error) {
		return retry.Do(ctx, s.retryer, func(ctx context.Context) ([]byte, error) {
			return s.caller.do(ctx, func(ctx context.Context) (*http.Request, error) {
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
				if err != nil {
					return nil, err
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Accept", "application/json")
				s.authorize(req)
				return req, nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, badResponse("status", err)
	}

	docs := make([]StatusDocument, 0, len(resp.Hits.Hits))
	skipped := 0
	for _, hit := range resp.Hits.Hits {
		var doc StatusDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			skipped++
			s.logger.Warn("skipping malformed status document",
				zap.String("index_name", indexName),
				zap.String("doc_id", hit.ID),
				zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	s.logger.Debug("status query completed",
		zap.String("index_name", indexName),
		zap.Int("documents", len(docs)),
		zap.Int("skipped", skipped))

	return docs, nil
}

func (s *SearchIndexSource) authorize(req *http.Request) {
	switch {
	case s.config.APIKey != "":
		req.Header.Set("Authorization", "ApiKey "+s.config.APIKey)
	case s.config.Username != "":
		req.SetBasicAuth(s.config.Username, s.config.Password)
	}
}
