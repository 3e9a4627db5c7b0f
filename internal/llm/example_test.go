// Package llm provides an OpenAI-compatible HTTP client for chat completions
// and embeddings.
//
// Any server speaking the OpenAI /v1/embeddings and /v1/chat/completions
// routes works; point WithBaseURL at it.
//
// # Quick Start
//
//	client, err := llm.NewClient(
//	    llm.WithAPIKey("sk-..."),
//	    llm.WithModel(llm.DefaultChatModel),
//	    llm.WithEmbeddingModel(llm.DefaultEmbeddingModel),
//	    llm.WithEmbeddingDimensions(1536),
//	)
//
// # Generate
//
//	temp := 0.3
//	resp, err := client.Generate(ctx, llm.CompletionRequest{
//	    Messages: []llm.Message{
//	        {Role: llm.RoleSystem, Content: "You are a helpful assistant."},
//	        {Role: llm.RoleUser, Content: "Hello!"},
//	    },
//	    Temperature: &temp,
//	})
//	fmt.Println(resp.FirstContent())
//
// # Embeddings
//
//	emb, err := client.Embed(ctx, llm.EmbeddingRequest{Input: "환불은 어떻게 받나요?"})
//	vec := emb.Data[0].Embedding // 1536 floats, shortened from 3072
//
// # Errors
//
// Failures are typed: RateLimitError, AuthenticationError, InvalidRequestError,
// TimeoutError and DecodeError. An error payload returned with a 200 status is
// reported the same way as a non-2xx response. IsRetryableError tells callers
// whether backing off is worthwhile; the client itself never retries.
//
// # With Metrics
//
//	metered := client.WithMetrics()
//	resp, err := metered.Generate(ctx, req)
package llm
