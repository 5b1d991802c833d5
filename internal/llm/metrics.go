package llm

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "trialmatch",
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Latency of LLM completions",
		// Focus on sub-10s buckets with a few higher ones for visibility.
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
	},
	[]string{"model", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trialmatch",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens used by the LLM",
	},
	[]string{"model", "type"}, // type: input, output, total
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
}

// InstrumentedClient decorates a Client with latency and token metrics.
type InstrumentedClient struct {
	inner Client
	model string
}

// NewInstrumentedClient wraps client so every completion is observed under the
// given model label.
func NewInstrumentedClient(inner Client, model string) *InstrumentedClient {
	if inner == nil {
		panic("llm: inner client cannot be nil")
	}
	return &InstrumentedClient{inner: inner, model: model}
}

func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(c.model, status).Observe(latency.Seconds())
	if resp.Usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(c.model, "input").Add(float64(resp.Usage.InputTokens))
	}
	if resp.Usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(c.model, "output").Add(float64(resp.Usage.OutputTokens))
	}
	if resp.Usage.TotalTokens > 0 {
		llmTokensTotal.WithLabelValues(c.model, "total").Add(float64(resp.Usage.TotalTokens))
	}
	return resp, err
}
