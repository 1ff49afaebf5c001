package adapter

// Metrics captures the normalized measurements of one adapter call.
type Metrics struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	LatencyMs        int64   `json:"latencyMs"`
	Cost             float64 `json:"cost"`
}

// Response is the result of one successful adapter call.
type Response struct {
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Content  string  `json:"content"`
	Metrics  Metrics `json:"metrics"`
}
