package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	gohttp "net/http"
	"time"

	"procdexeh/mcpcore/internal/mcp"
)

const DefaultAddr = ":6969"

const shutdownTimeout = 5 * time.Second

type Config struct {
	MCP    *mcp.Server
	Logger *slog.Logger

	// MaxBodyBytes bounds an HTTP body or a WebSocket frame.
	MaxBodyBytes int64

	// OriginPatterns lists the extra hosts allowed to open WebSocket
	// connections from a browser. Same-origin is always allowed.
	OriginPatterns []string
}

// Server exposes an mcp.Server over HTTP (POST /mcp) and WebSocket
// (GET /mcp/ws). It keeps no state between requests.
type Server struct {
	mcp            *mcp.Server
	logger         *slog.Logger
	maxBody        int64
	originPatterns []string
}

func New(cfg Config) (*Server, error) {
	if cfg.MCP == nil {
		return nil, errors.New("mcp server is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = mcp.MaxMessageSize
	}
	return &Server{
		mcp:            cfg.MCP,
		logger:         logger,
		maxBody:        maxBody,
		originPatterns: cfg.OriginPatterns,
	}, nil
}

// RegisterRoutes attaches the MCP endpoints and a health check to mux.
func (s *Server) RegisterRoutes(mux *gohttp.ServeMux) {
	mux.HandleFunc("GET /health", func(w gohttp.ResponseWriter, r *gohttp.Request) {
		s.logger.Debug("HEALTH CHECK", "FROM", r.RemoteAddr)
		w.WriteHeader(gohttp.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("POST /mcp", s.handlePost)
	mux.HandleFunc("GET /mcp/ws", s.handleWebSocket)
}

func (s *Server) Handler() gohttp.Handler {
	mux := gohttp.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Run listens on addr until ctx is done, then shuts down gracefully.
// Open WebSocket connections see their context cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &gohttp.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("LISTENING ON", "ADDR", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, gohttp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("HTTP SERVER SHUTTING DOWN")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

// handlePost serves one JSON-RPC request per POST. Protocol failures are
// reported inside the envelope with status 200.
func (s *Server) handlePost(w gohttp.ResponseWriter, r *gohttp.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		s.writeResponse(w, mcp.NewErrorResponse(mcp.NullID, mcp.NewParseError("failed to read request body")))
		return
	}
	if int64(len(body)) > s.maxBody {
		s.writeResponse(w, mcp.NewErrorResponse(mcp.NullID, mcp.NewInvalidRequest("request body too large")))
		return
	}

	req, rpcErr := mcp.DecodeRequest(body)
	if rpcErr != nil {
		s.logger.Debug("undecodable HTTP request", "remote", r.RemoteAddr, "error", rpcErr)
		s.writeResponse(w, mcp.NewErrorResponse(mcp.NullID, rpcErr))
		return
	}

	resp := s.mcp.Handle(r.Context(), req)
	if resp == nil {
		w.WriteHeader(gohttp.StatusAccepted)
		return
	}
	s.writeResponse(w, *resp)
}

func (s *Server) writeResponse(w gohttp.ResponseWriter, resp mcp.Response) {
	data, err := encode(resp)
	if err != nil {
		s.logger.Error("encode response", "id", resp.ID.String(), "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gohttp.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

// encode serializes resp. If that fails it falls back to an internal error
// with the same id.
func encode(resp mcp.Response) ([]byte, error) {
	data, err := mcp.EncodeResponse(resp)
	if err == nil {
		return data, nil
	}
	fallback, _ := mcp.EncodeResponse(mcp.NewErrorResponse(resp.ID, mcp.NewInternalError("failed to encode response")))
	return fallback, err
}
