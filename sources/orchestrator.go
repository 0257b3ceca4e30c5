package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/retry"
	"github.com/BaSui01/kpreconcile/internal/tlsutil"
	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/types"
)

// OrchestratorConfig configures the continuous-activity adapter.
type OrchestratorConfig struct {
	ProductionURL  string        `json:"production_url"`  // Orchestrator node serving production
	DevelopmentURL string        `json:"development_url"` // Orchestrator node serving development
	ProjectKey     string        `json:"project_key"`     // Project owning the sync recipes
	APIKey         string        `json:"-"`               // Sent as the basic auth user
	Timeout        time.Duration `json:"timeout"`         // Per-attempt timeout
	MaxRetries     int           `json:"max_retries"`     // Retries within one bulk fetch
}

// DefaultOrchestratorConfig returns sensible defaults for the bulk fetch.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

// BaseURL returns the orchestrator node for env.
func (c OrchestratorConfig) BaseURL(env pipeline.Environment) string {
	if env.IsProduction() {
		return c.ProductionURL
	}
	return c.DevelopmentURL
}

// OrchestratorOption customizes an OrchestratorSource.
type OrchestratorOption func(*OrchestratorSource)

// WithOrchestratorHTTPClient overrides the HTTP client.
func WithOrchestratorHTTPClient(client *http.Client) OrchestratorOption {
	return func(o *OrchestratorSource) { o.caller.client = client }
}

// WithOrchestratorObserver reports every request to observer.
func WithOrchestratorObserver(observer RequestObserver) OrchestratorOption {
	return func(o *OrchestratorSource) { o.caller.observer = observer }
}

// OrchestratorSource fetches every continuous activity of a project in one call.
type OrchestratorSource struct {
	config  OrchestratorConfig
	caller  *httpCaller
	retryer *retry.Retryer
	logger  *zap.Logger
}

// NewOrchestratorSource creates a new continuous-activity adapter.
func NewOrchestratorSource(config OrchestratorConfig, logger *zap.Logger, opts ...OrchestratorOption) *OrchestratorSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", "activity"))

	o := &OrchestratorSource{
		config: config,
		caller: &httpCaller{
			source:  "activity",
			client:  tlsutil.SecureHTTPClient(config.Timeout),
			timeout: config.Timeout,
			logger:  logger,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = config.MaxRetries
	policy.Retryable = types.IsRetryable
	o.retryer = retry.New(policy, logger)
	return o
}

// Name returns the data source name.
func (o *OrchestratorSource) Name() string { return "activity" }

// FetchActivities returns all continuous activities for the configured project
// on the orchestrator node serving env.
func (o *OrchestratorSource) FetchActivities(ctx context.Context, env pipeline.Environment) ([]Activity, error) {
	base := strings.TrimRight(o.config.BaseURL(env), "/")
	if base == "" {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("no orchestrator url configured for %s", env)).WithSource("activity")
	}
	if o.config.ProjectKey == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "orchestrator project key is required").WithSource("activity")
	}

	endpoint := fmt.Sprintf("%s/public/api/projects/%s/continuous-activities/", base, url.PathEscape(o.config.ProjectKey))

	body, err := retry.Do(ctx, o.retryer, func(ctx context.Context) ([]byte, error) {
		return o.caller.do(ctx, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			if o.config.APIKey != "" {
				req.SetBasicAuth(o.config.APIKey, "")
			}
			return req, nil
		})
	})
	if err != nil {
		return nil, err
	}

	var activities []Activity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, badResponse("activity", err)
	}

	o.logger.Debug("continuous activities fetched",
		zap.String("environment", env.String()),
		zap.Int("activities", len(activities)))

	return activities, nil
}
