package reconcile

import "time"

// Metrics 对账过程的指标接收方，由 metrics.Collector 实现
type Metrics interface {
	ObserveCycle(reconciler, outcome string, duration time.Duration)
	ObserveSkippedCycle(reconciler string)
	ObserveItem(reconciler, result string)
	ObserveTransition(field, from, to string)
	ObserveLease(reconciler, result string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(string, string, time.Duration) {}
func (nopMetrics) ObserveSkippedCycle(string)                 {}
func (nopMetrics) ObserveItem(string, string)                 {}
func (nopMetrics) ObserveTransition(string, string, string)   {}
func (nopMetrics) ObserveLease(string, string)                {}
