package llm

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type CompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             float64         `json:"top_p,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	User             string          `json:"user,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
}

type CompletionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

func (r *CompletionResponse) validate() error {
	if r.Choices == nil && r.ID == "" {
		return &DecodeError{Reason: "completion response has neither id nor choices"}
	}
	return nil
}

// FirstContent returns the text of the first choice, or "" when the model
// produced nothing.
func (r *CompletionResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return r.Choices[0].Message.Content
}

type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type EmbeddingRequest struct {
	Model          string `json:"model"`
	Input          any    `json:"input"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	Dimensions     *int   `json:"dimensions,omitempty"`
}

type EmbeddingResponse struct {
	Object string      `json:"object"`
	Data   []Embedding `json:"data"`
	Model  string      `json:"model"`
	Usage  Usage       `json:"usage"`
}

func (r *EmbeddingResponse) validate() error {
	if r.Data == nil {
		return &DecodeError{Reason: "embedding response has no data field"}
	}
	for i, d := range r.Data {
		if len(d.Embedding) == 0 {
			return &DecodeError{Reason: fmt.Sprintf("embedding %d is empty", i)}
		}
	}
	return nil
}

type Embedding struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type jsonRichMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name,omitempty"`
}

// UnmarshalJSON accepts a null content, which providers send for refusals.
func (m *Message) UnmarshalJSON(data []byte) error {
	var rich jsonRichMessage
	if err := json.Unmarshal(data, &rich); err != nil {
		return err
	}

	m.Role = Role(rich.Role)
	m.Name = rich.Name

	if len(rich.Content) == 0 || string(rich.Content) == "null" {
		m.Content = ""
		return nil
	}

	var text string
	if err := json.Unmarshal(rich.Content, &text); err != nil {
		m.Content = string(rich.Content)
		return nil
	}
	m.Content = text

	return nil
}
