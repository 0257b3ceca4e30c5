package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/types"
)

func newOrchestratorServer(t *testing.T, label string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/public/api/projects/KNOWLEDGE/continuous-activities/", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api-key", user)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"recipeId":"sync_recipe_` + label + `","desiredState":"STARTED"},
			{"recipeId":"sync_recipe_stopped","desiredState":"STOPPED"},
			{"recipeId":"sync_recipe_null","desiredState":null}
		]`))
	}))
}

func TestOrchestratorSource_FetchActivities_RoutesByEnvironment(t *testing.T) {
	t.Parallel()

	var prodHits, devHits atomic.Int32
	prod := newOrchestratorServer(t, "prod", &prodHits)
	defer prod.Close()
	dev := newOrchestratorServer(t, "dev", &devHits)
	defer dev.Close()

	observer := &recordingObserver{}
	src := NewOrchestratorSource(OrchestratorConfig{
		ProductionURL:  prod.URL + "/",
		DevelopmentURL: dev.URL,
		ProjectKey:     "KNOWLEDGE",
		APIKey:         "api-key",
		Timeout:        time.Second,
	}, zaptest.NewLogger(t), WithOrchestratorObserver(observer))

	acts, err := src.FetchActivities(context.Background(), pipeline.EnvProduction)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	assert.Equal(t, "sync_recipe_prod", acts[0].RecipeID)
	assert.Equal(t, "STARTED", *acts[0].DesiredState)
	assert.Nil(t, acts[2].DesiredState)

	acts, err = src.FetchActivities(context.Background(), pipeline.EnvDevelopment)
	require.NoError(t, err)
	assert.Equal(t, "sync_recipe_dev", acts[0].RecipeID)

	assert.Equal(t, int32(1), prodHits.Load())
	assert.Equal(t, int32(1), devHits.Load())
	assert.Equal(t, []string{"activity:200", "activity:200"}, observer.all())
}

func TestOrchestratorSource_ServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := NewOrchestratorSource(OrchestratorConfig{
		DevelopmentURL: server.URL,
		ProjectKey:     "KNOWLEDGE",
		Timeout:        time.Second,
		MaxRetries:     1,
	}, zaptest.NewLogger(t))

	_, err := src.FetchActivities(context.Background(), pipeline.EnvDevelopment)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSourceUnavailable))
	assert.Equal(t, int32(2), calls.Load())
}

func TestOrchestratorSource_Unauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	src := NewOrchestratorSource(OrchestratorConfig{
		DevelopmentURL: server.URL,
		ProjectKey:     "KNOWLEDGE",
		Timeout:        time.Second,
		MaxRetries:     2,
	}, zaptest.NewLogger(t))

	_, err := src.FetchActivities(context.Background(), pipeline.EnvDevelopment)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSourceRejected))
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, e.HTTPStatus)
}

func TestOrchestratorSource_MisconfiguredEnvironment(t *testing.T) {
	t.Parallel()

	src := NewOrchestratorSource(OrchestratorConfig{
		DevelopmentURL: "http://dev.invalid",
		ProjectKey:     "KNOWLEDGE",
	}, nil)

	_, err := src.FetchActivities(context.Background(), pipeline.EnvProduction)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))

	src = NewOrchestratorSource(OrchestratorConfig{DevelopmentURL: "http://dev.invalid"}, nil)
	_, err = src.FetchActivities(context.Background(), pipeline.EnvDevelopment)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
}

func TestOrchestratorSource_BadJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	src := NewOrchestratorSource(OrchestratorConfig{
		DevelopmentURL: server.URL,
		ProjectKey:     "KNOWLEDGE",
		Timeout:        time.Second,
	}, zaptest.NewLogger(t))

	_, err := src.FetchActivities(context.Background(), pipeline.EnvDevelopment)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSourceBadResponse))
}
