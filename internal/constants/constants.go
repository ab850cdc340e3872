// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Capture constants
const (
	// CameraFrameBuffer is the number of pushed camera frames buffered ahead of the classifier
	CameraFrameBuffer = 2

	// MaxCameraFrameSize is the maximum size of a single websocket camera frame in bytes
	MaxCameraFrameSize = 4 << 20

	// MaxImageSize is the maximum dimension (width or height) of images sent to AI providers
	MaxImageSize = 800
)

// Session constants
const (
	// DefaultSessionTTL is how long an idle quiz session is kept in memory
	DefaultSessionTTL = 30 * time.Minute

	// SessionSweepInterval is how often expired sessions are evicted
	SessionSweepInterval = time.Minute
)

// Knowledge base constants
const (
	// DefaultKnowledgeTopK is the number of knowledge base passages added to the prompt
	DefaultKnowledgeTopK = 2
)
