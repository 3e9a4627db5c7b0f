package llm

import (
	"context"
	"fmt"
	"strings"
)

// Embed requests embeddings for a string or a []string input. Blank inputs
// are rejected locally since the provider answers them with a 400.
func (c *Client) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	req.Model = firstNonEmpty(req.Model, c.embeddingModel)
	req.EncodingFormat = firstNonEmpty(req.EncodingFormat, "float")

	if req.Model == "" {
		return nil, invalidRequest("model is required")
	}
	if err := checkEmbeddingInput(req.Input); err != nil {
		return nil, err
	}
	if req.Dimensions == nil {
		req.Dimensions = c.shortenTo(req.Model)
	}

	var embeddings EmbeddingResponse
	if err := c.post(ctx, "/v1/embeddings", req, &embeddings); err != nil {
		return nil, err
	}
	return &embeddings, nil
}

func checkEmbeddingInput(input any) error {
	switch v := input.(type) {
	case nil:
		return invalidRequest("input is required")
	case string:
		if strings.TrimSpace(v) == "" {
			return invalidRequest("input is empty")
		}
	case []string:
		if len(v) == 0 {
			return invalidRequest("input is required")
		}
		for i, s := range v {
			if strings.TrimSpace(s) == "" {
				return invalidRequest(fmt.Sprintf("input %d is empty", i))
			}
		}
	default:
		return invalidRequest(fmt.Sprintf("unsupported input type %T", input))
	}
	return nil
}

func (c *Client) shortenTo(model string) *int {
	n := c.embeddingDimensions
	native := NativeDimension(model)
	if n <= 0 || !shortenable(model) || (native > 0 && n >= native) {
		return nil
	}
	return &n
}
