package logship

// Version information for the logship module.
const (
	// Version is the current version of the logship module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)

// UserAgent is sent with every request.
const UserAgent = "logship-go/" + Version + " (HTTP)"
