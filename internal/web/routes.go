package web

const (
	Health  = "/health"
	Ask     = "/ask"
	Metrics = "/metrics"

	GhostWebhook = "/webhooks/ghost"
)
