package config

const (
	HCType        = "Content-Type"
	HCacheControl = "Cache-Control"
	HRequestID    = "X-Request-Id"
	HETag         = "ETag"
	HIfNoneMatch  = "If-None-Match"

	CTypeJSON        = "application/json"
	CTypeEventStream = "text/event-stream"
)

const (
	HTTPErrMethodNotAllowed = "Method not allowed"
)

// Maximum accepted request body for document uploads.
const MaxDocumentBytes = 32 << 20
