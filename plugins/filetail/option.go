package filetail

import "github.com/bft-labs/logship/pkg/logship"

// WithFileTail returns a logship Option that follows a file and ships
// every appended line.
//
// Usage:
//
//	dev, err := logship.New(cfg,
//	    filetail.WithFileTail(filetail.Config{
//	        Path:      "/var/log/app.log",
//	        FromStart: true,
//	    }),
//	)
func WithFileTail(cfg Config) logship.Option {
	return logship.WithPlugin(New(cfg))
}

// WithFiles returns one file tail Option per path, using default settings.
func WithFiles(paths ...string) []logship.Option {
	opts := make([]logship.Option, 0, len(paths))
	for _, path := range paths {
		cfg := DefaultConfig()
		cfg.Path = path
		opts = append(opts, WithFileTail(cfg))
	}
	return opts
}
