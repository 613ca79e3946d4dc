// Package routes defines HTTP route constants for the application.
package routes

// API Routes
const (
	// SSE
	SSEPath = "/sse"

	// Metrics
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"

	// Document
	APIDocument  = "/api/document"
	APISave      = "/api/save"
	APILoad      = "/api/load"
	APISaveState = "/api/save-state"

	// Block commands
	APIBlock     = "/api/blocks/{id}"
	APIBlockOpen = "/api/blocks/{id}/open"
)
