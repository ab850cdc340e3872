package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Request size constants
const (
	// MaxUploadSize is the maximum multipart request size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// MaxJSONBodySize is the maximum JSON request body size in bytes
	MaxJSONBodySize = 64 << 10
)
