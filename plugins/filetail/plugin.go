// Package filetail provides a file-following input for logship.
// When enabled, it watches a file for appended lines and writes each
// line to the device as one message. Truncation and rotation
// (rename or remove followed by create) are handled.
package filetail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/logship/internal/linesource"
	"github.com/bft-labs/logship/pkg/log"
	"github.com/bft-labs/logship/pkg/logship"
)

// Plugin follows one file.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path         string
	fromStart    bool
	pollInterval time.Duration

	// Runtime state
	writer io.Writer
	logger logship.Logger
	file   *os.File
	offset int64
	split  linesource.Splitter
	lines  int64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration options for the file tail plugin.
type Config struct {
	// Path is the file to follow. Required.
	Path string

	// FromStart reads the existing content of the file before following.
	// Default: false (start at the end of the file)
	FromStart bool

	// PollInterval is how often the file is checked in addition to
	// filesystem notifications.
	// Default: 1 second
	PollInterval time.Duration

	// MaxLine bounds a single message.
	// Default: linesource.DefaultMaxLine
	MaxLine int
}

// DefaultConfig returns a Config with sensible defaults. Path must be set.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		MaxLine:      linesource.DefaultMaxLine,
	}
}

// New creates a new file tail plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxLine <= 0 {
		cfg.MaxLine = linesource.DefaultMaxLine
	}

	p := &Plugin{
		path:         filepath.Clean(cfg.Path),
		fromStart:    cfg.FromStart,
		pollInterval: cfg.PollInterval,
	}
	p.split.MaxLine = cfg.MaxLine
	return p
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "filetail"
}

// Lines returns the number of lines written to the device so far.
func (p *Plugin) Lines() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Initialize opens the file and starts following it.
// A file that does not exist yet is picked up once it is created.
func (p *Plugin) Initialize(ctx context.Context, cfg logship.PluginConfig) error {
	if p.path == "" || p.path == "." {
		return errors.New("filetail: path is required")
	}
	if cfg.Writer == nil {
		return errors.New("filetail: writer is required")
	}

	p.mu.Lock()
	p.writer = cfg.Writer
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if err := p.open(!p.fromStart); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.mu.Unlock()
		return fmt.Errorf("filetail: open %s: %w", p.path, err)
	}
	p.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.closeFile()
		return fmt.Errorf("filetail: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		p.closeFile()
		return fmt.Errorf("filetail: watch %s: %w", filepath.Dir(p.path), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("File tail plugin initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops following, writes a pending partial line and closes
// the file.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.readAvailable()
		if err := p.split.Flush(p.emit); err != nil {
			p.logger.Warn("File tail: write failed", log.String("path", p.path), log.Err(err))
		}
	}
	p.closeFileLocked()
	return nil
}

// watchLoop reacts to filesystem events and polls as a fallback.
func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.poll()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				p.rotate()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				p.release()
			default:
				p.poll()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("File tail: watcher error", log.String("path", p.path), log.Err(err))

		case <-ticker.C:
			p.poll()
		}
	}
}

// poll reads what was appended and detects replacement of the file.
func (p *Plugin) poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		if err := p.open(false); err != nil {
			return
		}
	}
	p.readAvailable()

	if p.replacedLocked() {
		p.reopenLocked()
	}
}

// rotate drains the current file and switches to the newly created one.
func (p *Plugin) rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trackingLocked() {
		p.readAvailable()
		return
	}
	p.reopenLocked()
}

// release drains and closes the current file after it was moved away.
// The path is reopened when it is created again.
func (p *Plugin) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil || p.trackingLocked() {
		return
	}
	p.readAvailable()
	p.flushPartial()
	p.closeFileLocked()
	p.logger.Debug("File tail: file moved away", log.String("path", p.path))
}

func (p *Plugin) reopenLocked() {
	if p.file != nil {
		p.readAvailable()
		p.flushPartial()
		p.closeFileLocked()
	}
	if err := p.open(false); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("File tail: reopen failed", log.String("path", p.path), log.Err(err))
		}
		return
	}
	p.logger.Info("File tail: file rotated", log.String("path", p.path))
	p.readAvailable()
}

// open opens the path, positioned at the end when atEnd is set.
func (p *Plugin) open(atEnd bool) error {
	f, err := os.Open(p.path)
	if err != nil {
		return err
	}
	var offset int64
	if atEnd {
		offset, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return err
		}
	}
	p.file = f
	p.offset = offset
	p.split.Reset()
	return nil
}

// readAvailable writes every complete line appended since the last read.
// A file smaller than the read offset was truncated and is reread from
// the start.
func (p *Plugin) readAvailable() {
	if p.file == nil {
		return
	}

	info, err := p.file.Stat()
	if err != nil {
		p.logger.Warn("File tail: stat failed", log.String("path", p.path), log.Err(err))
		return
	}
	if info.Size() < p.offset {
		p.logger.Info("File tail: file truncated", log.String("path", p.path))
		if _, err := p.file.Seek(0, io.SeekStart); err != nil {
			p.logger.Warn("File tail: seek failed", log.String("path", p.path), log.Err(err))
			return
		}
		p.offset = 0
		p.split.Reset()
	}

	buf := make([]byte, 32<<10)
	for {
		n, err := p.file.Read(buf)
		if n > 0 {
			p.offset += int64(n)
			if werr := p.split.Feed(buf[:n], p.emit); werr != nil {
				p.logger.Warn("File tail: write failed", log.String("path", p.path), log.Err(werr))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("File tail: read failed", log.String("path", p.path), log.Err(err))
			}
			return
		}
	}
}

// replacedLocked reports whether the path now names a different file.
func (p *Plugin) replacedLocked() bool {
	current, err := p.file.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(p.path)
	if err != nil {
		return false
	}
	return !os.SameFile(current, onDisk)
}

// trackingLocked reports whether the open file is the one at the path.
func (p *Plugin) trackingLocked() bool {
	if p.file == nil {
		return false
	}
	current, err := p.file.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(p.path)
	if err != nil {
		return false
	}
	return os.SameFile(current, onDisk)
}

func (p *Plugin) flushPartial() {
	if err := p.split.Flush(p.emit); err != nil {
		p.logger.Warn("File tail: write failed", log.String("path", p.path), log.Err(err))
	}
}

func (p *Plugin) emit(line []byte) error {
	if _, err := p.writer.Write(line); err != nil {
		return err
	}
	p.lines++
	return nil
}

func (p *Plugin) closeFile() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeFileLocked()
}

func (p *Plugin) closeFileLocked() {
	if p.file != nil {
		p.file.Close()
		p.file = nil
	}
}
