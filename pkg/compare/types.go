package compare

import (
	"errors"

	"github.com/zen-systems/modelcompare/pkg/adapter"
)

// ErrEmptyPrompt is returned when a comparison is requested for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// Status tags a settled adapter invocation.
type Status string

const (
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// Outcome is the settled result of one adapter invocation. Exactly one of
// Response and Failure is set; the other encodes as null.
type Outcome struct {
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Status   Status            `json:"status"`
	Response *adapter.Response `json:"data"`
	Failure  *adapter.Failure  `json:"error"`
}

// Metrics summarizes one comparison across its successful responses.
type Metrics struct {
	TotalLatencyMs         int64   `json:"totalLatencyMs"`
	TotalCost              float64 `json:"totalCost"`
	FastestModel           string  `json:"fastestModel"`
	MostCostEffectiveModel string  `json:"mostCostEffectiveModel"`
}

// Result is a prompt with every adapter outcome and the derived metrics.
type Result struct {
	Prompt   string    `json:"prompt"`
	Outcomes []Outcome `json:"responses"`
	Metrics  Metrics   `json:"metrics"`
}

// Successful returns the fulfilled responses in adapter order.
func (r *Result) Successful() []adapter.Response {
	return successful(r.Outcomes)
}

// Succeeded counts fulfilled outcomes.
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusFulfilled {
			n++
		}
	}
	return n
}

// Failed counts rejected outcomes.
func (r *Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

func successful(outcomes []Outcome) []adapter.Response {
	responses := make([]adapter.Response, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == StatusFulfilled && o.Response != nil {
			responses = append(responses, *o.Response)
		}
	}
	return responses
}
