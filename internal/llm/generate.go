package llm

import (
	"context"
	"fmt"
)

// Generate sends one chat completion. The request is checked locally so a
// malformed prompt fails fast instead of costing a round trip.
func (c *Client) Generate(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	req.Model = firstNonEmpty(req.Model, c.model)

	if err := checkCompletion(req); err != nil {
		return nil, err
	}

	var completion CompletionResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

func checkCompletion(req CompletionRequest) error {
	if req.Model == "" {
		return invalidRequest("model is required")
	}
	if len(req.Messages) == 0 {
		return invalidRequest("messages are required")
	}
	if t := req.Temperature; t != nil && (*t < 0 || *t > 2) {
		return invalidRequest(fmt.Sprintf("temperature %.2f out of range [0, 2]", *t))
	}
	for i, m := range req.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return invalidRequest(fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
	}
	return nil
}

func invalidRequest(msg string) error {
	return &InvalidRequestError{APIError{Message: msg}}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
