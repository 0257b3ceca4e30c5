package reconcile

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
	"github.com/BaSui01/kpreconcile/testutil/fixtures"
)

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name string
		docs []sources.StatusDocument
		want pipeline.LoadStatus
	}{
		{name: "nil list", docs: nil, want: pipeline.LoadRunning},
		{name: "empty list", docs: []sources.StatusDocument{}, want: pipeline.LoadRunning},
		{name: "all running", docs: fixtures.RunningDocs("10", "20"), want: pipeline.LoadRunning},
		{name: "unknown values", docs: []sources.StatusDocument{fixtures.Doc("paused", ""), fixtures.Doc("", "")}, want: pipeline.LoadRunning},
		{name: "case sensitive", docs: []sources.StatusDocument{fixtures.Doc("ERROR", ""), fixtures.Doc("Complete", "")}, want: pipeline.LoadRunning},
		{name: "single complete", docs: fixtures.CompleteDocs(), want: pipeline.LoadComplete},
		{
			name: "complete wins over running",
			docs: []sources.StatusDocument{fixtures.Doc("running", "40"), fixtures.Doc("complete", ""), fixtures.Doc("running", "60")},
			want: pipeline.LoadComplete,
		},
		{
			name: "error wins over complete",
			docs: []sources.StatusDocument{fixtures.Doc("complete", ""), fixtures.Doc("error", "")},
			want: pipeline.LoadError,
		},
		{
			name: "error first",
			docs: []sources.StatusDocument{fixtures.Doc("error", ""), fixtures.Doc("running", "99")},
			want: pipeline.LoadError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineStatus(tt.docs))
		})
	}
}

func TestDetermineProgress(t *testing.T) {
	tests := []struct {
		name   string
		docs   []sources.StatusDocument
		want   float64
		wantOK bool
	}{
		{name: "error status does not update", docs: []sources.StatusDocument{fixtures.Doc("error", "50"), fixtures.Doc("running", "70")}, want: 0, wantOK: false},
		{name: "complete is exactly 100", docs: []sources.StatusDocument{fixtures.Doc("complete", "12"), fixtures.Doc("running", "3")}, want: 100, wantOK: true},
		{name: "max of valid rates", docs: fixtures.RunningDocs("30", "not-a-number", "75"), want: 75, wantOK: true},
		{name: "all invalid", docs: fixtures.RunningDocs("abc", "", "1,5"), want: 0, wantOK: true},
		{name: "empty list", docs: nil, want: 0, wantOK: true},
		{name: "missing rates", docs: []sources.StatusDocument{fixtures.Doc("running", "")}, want: 0, wantOK: true},
		{name: "decimal rate", docs: fixtures.RunningDocs("12.5", "3.25"), want: 12.5, wantOK: true},
		{name: "whitespace tolerated", docs: fixtures.RunningDocs(" 42 "), want: 42, wantOK: true},
		{name: "clamped above 100", docs: fixtures.RunningDocs("250"), want: 100, wantOK: true},
		{name: "clamped below 0", docs: fixtures.RunningDocs("-5"), want: 0, wantOK: true},
		{name: "150 while running clamps to 100", docs: fixtures.RunningDocs("150"), want: 100, wantOK: true},
		{name: "over-range max still clamps", docs: fixtures.RunningDocs("40", "150"), want: 100, wantOK: true},
		{name: "negative ignored by max", docs: fixtures.RunningDocs("-5", "15"), want: 15, wantOK: true},
		{name: "just above 100 clamps", docs: fixtures.RunningDocs("100.5"), want: 100, wantOK: true},
		{name: "NaN and Inf skipped", docs: fixtures.RunningDocs("NaN", "Inf", "20"), want: 20, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetermineProgress(tt.docs, zap.NewNop())
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDetermineStatus_OutOfRangeRateStaysRunning(t *testing.T) {
	for _, rate := range []string{"150", "-5"} {
		docs := fixtures.RunningDocs(rate)
		assert.Equal(t, pipeline.LoadRunning, DetermineStatus(docs), rate)
	}
}

func TestDetermineProgress_LogsMalformedRate(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	got, ok := DetermineProgress(fixtures.RunningDocs("30", "bogus"), zap.New(core))
	require.True(t, ok)
	assert.Equal(t, 30.0, got)

	entries := logs.FilterMessage("skipping malformed rate").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bogus", entries[0].ContextMap()["rate"])
}

func TestDetermineProgress_NilLogger(t *testing.T) {
	got, ok := DetermineProgress(fixtures.RunningDocs("x", "5"), nil)
	assert.True(t, ok)
	assert.Equal(t, 5.0, got)
}

func TestParseRate(t *testing.T) {
	v, err := ParseRate("99.9")
	require.NoError(t, err)
	assert.Equal(t, 99.9, v)

	for _, raw := range []string{"", "abc", "NaN", "+Inf", "-inf", "1e400"} {
		_, err := ParseRate(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

// =============================================================================
// 属性测试
// =============================================================================

var rawStatuses = []string{"running", "complete", "error", "paused", ""}

func docGen() *rapid.Generator[sources.StatusDocument] {
	return rapid.Custom(func(t *rapid.T) sources.StatusDocument {
		d := sources.StatusDocument{Status: rapid.SampledFrom(rawStatuses).Draw(t, "status")}
		switch rapid.IntRange(0, 2).Draw(t, "rateKind") {
		case 1:
			d.Rate = sources.NewRate(rapid.StringMatching(`-?[0-9]{1,3}(\.[0-9]{1,2})?`).Draw(t, "rate"))
		case 2:
			d.Rate = sources.NewRate(rapid.StringMatching(`[a-z]{1,5}`).Draw(t, "junk"))
		}
		return d
	})
}

func TestProperty_StatusIsOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		docs := rapid.SliceOf(docGen()).Draw(t, "docs")
		perm := rapid.Permutation(docs).Draw(t, "perm")

		assert.Equal(t, DetermineStatus(docs), DetermineStatus(perm))

		p1, ok1 := DetermineProgress(docs, nil)
		p2, ok2 := DetermineProgress(perm, nil)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, p1, p2)
	})
}

func TestProperty_ErrorDominates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		docs := rapid.SliceOf(docGen()).Draw(t, "docs")
		at := rapid.IntRange(0, len(docs)).Draw(t, "at")
		withErr := append(append(append([]sources.StatusDocument{}, docs[:at]...), fixtures.Doc("error", "")), docs[at:]...)

		assert.Equal(t, pipeline.LoadError, DetermineStatus(withErr))
		_, ok := DetermineProgress(withErr, nil)
		assert.False(t, ok)
	})
}

func TestProperty_CompleteWithoutErrorIsFullProgress(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		docs := rapid.SliceOf(docGen()).Filter(func(ds []sources.StatusDocument) bool {
			for _, d := range ds {
				if d.Status == "error" {
					return false
				}
			}
			return true
		}).Draw(t, "docs")
		docs = append(docs, fixtures.Doc("complete", ""))

		assert.Equal(t, pipeline.LoadComplete, DetermineStatus(docs))
		p, ok := DetermineProgress(docs, nil)
		assert.True(t, ok)
		assert.Equal(t, 100.0, p)
	})
}

func TestProperty_RunningProgressIsBoundedMax(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("running progress is the clamped max of rates", prop.ForAll(
		func(rates []float64) bool {
			docs := make([]sources.StatusDocument, 0, len(rates))
			want := 0.0
			for i, r := range rates {
				docs = append(docs, fixtures.Doc("running", formatRate(r)))
				if i == 0 || r > want {
					want = r
				}
			}
			want = clampProgress(want)

			got, ok := DetermineProgress(docs, nil)
			if !ok || got < 0 || got > 100 {
				return false
			}
			if len(rates) == 0 {
				return got == 0
			}
			return got == want
		},
		gen.SliceOf(gen.Float64Range(-50, 150)),
	))

	properties.TestingRun(t)
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
