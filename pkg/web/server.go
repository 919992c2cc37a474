// Package web provides a small status endpoint for the classification loop.
//
// The server is read-only: the loop pushes snapshots in, HTTP clients read
// them out. It holds its own lock so the loop and the link stay lock-free.
package web

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/habproj/go-hab/internal/log"
)

// Status is one snapshot of the running system.
type Status struct {
	LinkState   string    `json:"link_state"`
	Port        string    `json:"port"`
	Degraded    bool      `json:"degraded"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	LastCommand string    `json:"last_command"`
	Sent        uint64    `json:"sent"`
	Suppressed  uint64    `json:"suppressed"`
	Skipped     uint64    `json:"skipped"`
	FPS         float64   `json:"fps"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Server exposes the status over HTTP.
type Server struct {
	app  *fiber.App
	addr string

	mu     sync.RWMutex
	status Status
}

// NewServer creates the server listening address but does not start it.
func NewServer(addr string) *Server {
	s := &Server{addr: addr}

	app := fiber.New(fiber.Config{
		AppName:               "hab status",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealthz)
	app.Get("/api/status", s.handleStatus)

	s.app = app
	return s
}

// SetStatus replaces the published snapshot.
func (s *Server) SetStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Start blocks serving HTTP. Run it in its own goroutine.
func (s *Server) Start() error {
	log.Info("status server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	return c.JSON(st)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
