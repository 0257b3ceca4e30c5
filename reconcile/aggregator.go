package reconcile

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
)

// ============================================================
// 状态聚合：把同一管道的多份分片状态归约为一个 (status, progress)
// ============================================================

const (
	rawStatusError    = "error"
	rawStatusComplete = "complete"
)

// DetermineStatus 归约分片状态，优先级 error > complete > running
// 与文档顺序无关；空列表与未知状态值都视为 running。
func DetermineStatus(docs []sources.StatusDocument) pipeline.LoadStatus {
	sawComplete := false
	for _, d := range docs {
		switch d.Status {
		case rawStatusError:
			return pipeline.LoadError
		case rawStatusComplete:
			sawComplete = true
		}
	}
	if sawComplete {
		return pipeline.LoadComplete
	}
	return pipeline.LoadRunning
}

// DetermineProgress 计算进度
//   - 状态归约为 error：返回 ok=false，调用方保留原进度
//   - complete：返回 100
//   - running：取所有可解析 rate 的最大值，无可解析值时为 0
//
// 无法解析的 rate 记录日志后跳过，不影响其余文档。
func DetermineProgress(docs []sources.StatusDocument, logger *zap.Logger) (progress float64, ok bool) {
	switch DetermineStatus(docs) {
	case pipeline.LoadError:
		return 0, false
	case pipeline.LoadComplete:
		return 100, true
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	best, parsed := 0.0, false
	for _, d := range docs {
		if !d.Rate.Valid {
			continue
		}
		v, err := ParseRate(d.Rate.Value)
		if err != nil {
			logger.Warn("skipping malformed rate",
				zap.String("rate", d.Rate.Value),
				zap.Error(err))
			continue
		}
		if !parsed || v > best {
			best, parsed = v, true
		}
	}
	if !parsed {
		return 0, true
	}
	return clampProgress(best), true
}

// ParseRate 解析十进制 rate，拒绝 NaN 与 ±Inf
func ParseRate(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &strconv.NumError{Func: "ParseRate", Num: raw, Err: strconv.ErrRange}
	}
	return v, nil
}

func clampProgress(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
