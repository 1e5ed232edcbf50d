// Package httpapi exposes the /bot control surface.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	logx "wabot/pkg/logx"
)

// Config controls the API server.
type Config struct {
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server owns the HTTP listener lifecycle. Start and Stop are idempotent.
type Server struct {
	cfg Config
	log logx.Logger
	h   *Handlers

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func NewServer(cfg Config, h *Handlers, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	return &Server{cfg: cfg, log: log, h: h}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/", s.h.Root)
	r.Route("/bot", func(r chi.Router) {
		r.Get("/qr", s.h.QR)
		r.Post("/numbers", s.h.UploadContacts)
		r.Post("/media", s.h.UploadMedia)
		r.Post("/salutations", s.h.SetSalutations)
		r.Post("/start", s.h.StartMessaging)
		r.Post("/clear", s.h.ClearData)
		r.Post("/logout", s.h.Logout)
		r.Get("/status", s.h.Status)
		r.Get("/report", s.h.LastReport)
		r.Get("/report/{id}", s.h.Report)
	})
	return r
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.ln = ln
	s.srv = srv

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
		}
	}()

	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	shCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("http server stopped")
}

// Addr returns the bound listen address ("" before Start).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}
