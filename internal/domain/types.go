package domain

// ChatRequest carries the only fields forwarded to Claude Engine.
// Decoding a caller body through this type is the allow-list: anything
// else the caller sends is dropped.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index   int      `json:"index"`
	Message *Message `json:"message,omitempty"`
	Delta   *Delta   `json:"delta,omitempty"`
}

type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one decoded data line from the engine's event stream.
// Usage, when present, is a snapshot that replaces any running counters.
type StreamChunk struct {
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// EngineError is the error shape Claude Engine returns on non-200 responses.
type EngineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorEnvelope struct {
	Error EngineError `json:"error"`
}

// Engine error codes with dedicated user-facing messages.
const (
	CodeBudgetExceeded       = "budget_exceeded"
	CodeSensitiveDataBlocked = "sensitive_data_blocked"
	CodeInvalidAPIKey        = "invalid_api_key"
	CodeAuthRequired         = "auth_required"
)

// BudgetStatus is the payload of GET /v1/budget/{userId}.
// MonthlyLimit and Remaining are nil for unlimited budgets.
type BudgetStatus struct {
	MonthlyLimit     *int64  `json:"monthlyLimit"`
	CurrentUsage     int64   `json:"currentUsage"`
	PercentUsed      float64 `json:"percentUsed"`
	Remaining        *int64  `json:"remaining"`
	ResetDate        string  `json:"resetDate"`
	Role             string  `json:"role"`
	Exceeded         bool    `json:"exceeded"`
	WarningThreshold bool    `json:"warningThreshold"`
}

// Model is one entry in the advertised model list.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
