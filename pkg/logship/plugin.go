package logship

import (
	"context"
	"io"
)

// Plugin extends a Device with an input or a side task.
// Plugins are initialized by New in registration order and shut down by
// Close in reverse order, before the device drains.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. ctx is cancelled when the device closes.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin. After it returns the plugin must not
	// write to the device.
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to every plugin on initialization.
type PluginConfig struct {
	// Writer is the device. Each Write call is one message.
	Writer io.Writer

	Logger Logger
}
