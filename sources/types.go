package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/BaSui01/kpreconcile/pipeline"
)

// StatusDocument is one partial status report from a worker or shard of a
// pipeline run, as stored in the status search index.
type StatusDocument struct {
	Status string `json:"status"`
	Rate   Rate   `json:"rate"`
}

// Rate holds the raw progress value of a status document. Writers emit it as
// a string, a number or null; it is kept as text and parsed by the aggregator
// so malformed values can be skipped one at a time.
type Rate struct {
	Value string
	Valid bool
}

// NewRate returns a present rate value.
func NewRate(v string) Rate { return Rate{Value: v, Valid: true} }

// UnmarshalJSON accepts a JSON string, number or null.
func (r *Rate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Rate{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = NewRate(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// booleans, objects: keep the literal so the aggregator logs and skips it
		*r = NewRate(string(data))
		return nil
	}
	*r = NewRate(n.String())
	return nil
}

// MarshalJSON writes the rate back as a string or null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(r.Value)), nil
}

// Activity is one continuous-activity record from the orchestrator.
type Activity struct {
	RecipeID     string  `json:"recipeId"`
	DesiredState *string `json:"desiredState"`
}

// StatusSource queries partial status documents for one pipeline index.
type StatusSource interface {
	Name() string
	QueryStatus(ctx context.Context, indexName string) ([]StatusDocument, error)
}

// ActivitySource fetches all continuous activities of the configured project
// in a single bulk call.
type ActivitySource interface {
	Name() string
	FetchActivities(ctx context.Context, env pipeline.Environment) ([]Activity, error)
}

// RequestObserver receives the outcome of every outbound HTTP request.
// status is the HTTP status code, or "error" when no response was received.
type RequestObserver interface {
	ObserveSourceRequest(source, status string, seconds float64)
}

func statusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return fmt.Sprintf("%d", code)
}
