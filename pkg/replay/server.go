// Package replay provides a development server that replays scripted event
// streams over the flow service's wire protocol, so the chat client can be
// exercised without a live backend.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/loomworksco/loom/pkg/sse"
)

// Config configures the replay server.
type Config struct {
	// Listen is the server's listen address, e.g. ":8089".
	Listen string

	// ScriptPath is the replay script to serve.
	ScriptPath string

	// Delay is the pause between events, simulating token pacing.
	Delay time.Duration

	// Logger is required.
	Logger *zap.Logger
}

// Server replays a scripted event stream to every streaming chat request.
// The script is hot-reloaded when the file changes on disk.
type Server struct {
	config Config
	logger *zap.Logger
	server *fiber.App

	mu     sync.RWMutex
	script *Script
}

// New creates a new replay Server, loading the script eagerly so a broken
// script fails at startup rather than on first request.
func New(config Config) (*Server, error) {
	if config.ScriptPath == "" {
		return nil, errors.New("script path is required")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}

	script, err := LoadScript(config.ScriptPath)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: config.Logger,
		server: app,
		script: script,
	}

	app.Post("/chat", s.handleChat)

	return s, nil
}

// Run starts the replay server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting replay server",
		zap.String("listen", s.config.Listen),
		zap.String("script", s.config.ScriptPath),
		zap.Int("events", len(s.current().Events)),
	)

	return s.server.Listen(s.config.Listen)
}

// RunWithListener starts the replay server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting replay server",
		zap.String("listen", listener.Addr().String()),
		zap.String("script", s.config.ScriptPath),
	)

	return s.server.Listener(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

// Watch reloads the script whenever it is rewritten on disk. Blocks until ctx
// is cancelled.
func (s *Server) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating script watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(s.config.ScriptPath)); err != nil {
		return fmt.Errorf("watching script dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(s.config.ScriptPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()

		case err := <-watcher.Errors:
			return fmt.Errorf("script watcher error: %w", err)
		}
	}
}

func (s *Server) reload() {
	script, err := LoadScript(s.config.ScriptPath)
	if err != nil {
		s.logger.Warn("keeping previous script", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.script = script
	s.mu.Unlock()

	s.logger.Info("reloaded replay script", zap.Int("events", len(script.Events)))
}

func (s *Server) current() *Script {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

// handleChat streams the scripted events to the client, one data event at a
// time with the configured delay between them.
func (s *Server) handleChat(c *fiber.Ctx) error {
	script := s.current()
	s.logger.Debug("replaying stream", zap.Int("events", len(script.Events)))

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// io.Pipe gives direct backpressure: each write blocks until fasthttp's
	// chunked writer has flushed it to the socket, so events reach the
	// client as they are produced rather than buffering.
	pr, pw := io.Pipe()
	go s.writeEvents(pw, script)

	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeEvents(pw *io.PipeWriter, script *Script) {
	defer pw.Close()

	// Leading comment line, as real streaming backends send to open the
	// connection before the first event is ready.
	if _, err := io.WriteString(pw, ": heartbeat\n\n"); err != nil {
		return
	}

	for _, payload := range script.Events {
		if s.config.Delay > 0 {
			time.Sleep(s.config.Delay)
		}
		if _, err := io.WriteString(pw, sse.FormatData(payload)); err != nil {
			// Client went away; stop replaying.
			return
		}
	}
}
