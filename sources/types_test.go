package sources

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRate_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Rate
	}{
		{"string", `{"status":"running","rate":"40"}`, NewRate("40")},
		{"decimal string", `{"status":"running","rate":"12.5"}`, NewRate("12.5")},
		{"number", `{"status":"running","rate":75}`, NewRate("75")},
		{"float number", `{"status":"running","rate":33.3}`, NewRate("33.3")},
		{"null", `{"status":"running","rate":null}`, Rate{}},
		{"missing", `{"status":"running"}`, Rate{}},
		{"garbage string", `{"status":"running","rate":"not-a-number"}`, NewRate("not-a-number")},
		{"boolean", `{"status":"running","rate":true}`, NewRate("true")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc StatusDocument
			require.NoError(t, json.Unmarshal([]byte(tt.input), &doc))
			assert.Equal(t, "running", doc.Status)
			assert.Equal(t, tt.want, doc.Rate)
		})
	}
}

func TestRate_MarshalJSON(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(StatusDocument{Status: "running", Rate: NewRate("40")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"running","rate":"40"}`, string(out))

	out, err = json.Marshal(StatusDocument{Status: "complete"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"complete","rate":null}`, string(out))
}

func TestActivity_NullDesiredState(t *testing.T) {
	t.Parallel()

	var acts []Activity
	require.NoError(t, json.Unmarshal([]byte(`[
		{"recipeId":"sync_recipe_a","desiredState":"STARTED","projectKey":"KB"},
		{"recipeId":"sync_recipe_b","desiredState":null}
	]`), &acts))

	require.Len(t, acts, 2)
	require.NotNil(t, acts[0].DesiredState)
	assert.Equal(t, "STARTED", *acts[0].DesiredState)
	assert.Nil(t, acts[1].DesiredState)
}
