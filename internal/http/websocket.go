package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	gohttp "net/http"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"procdexeh/mcpcore/internal/mcp"
)

// handleWebSocket upgrades the connection and serves it until the peer
// closes, the transport fails or the server shuts down.
func (s *Server) handleWebSocket(w gohttp.ResponseWriter, r *gohttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()
	// Frame size is enforced in readFrame so an oversized frame gets an
	// error response instead of a closed connection.
	conn.SetReadLimit(-1)

	connID := ulid.Make().String()
	logger := s.logger.With("conn_id", connID)
	session := s.mcp.NewSession(connID)
	defer session.Close()

	logger.Info("websocket connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	err = s.serveConn(ctx, conn, session, logger)
	switch {
	case err == nil:
		logger.Info("websocket closed by peer")
	case ctx.Err() != nil:
		logger.Info("websocket closing for shutdown")
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		logger.Warn("websocket connection failed", "error", err)
	}
}

// serveConn reads one frame at a time and answers it before reading the
// next, so responses leave in request order. Undecodable frames get an error
// response and the loop carries on. Returns nil when the peer closes.
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn, session *mcp.Session, logger *slog.Logger) error {
	for {
		typ, data, tooLarge, err := s.readFrame(ctx, conn)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var resp *mcp.Response
		if tooLarge {
			logger.Warn("oversized websocket frame rejected", "limit", s.maxBody)
			r := mcp.NewErrorResponse(mcp.NullID, mcp.NewInvalidRequest("request body too large"))
			resp = &r
		} else {
			resp = s.handleFrame(ctx, session, typ, data, logger)
		}
		if resp == nil {
			continue
		}

		out, err := encode(*resp)
		if err != nil {
			logger.Error("encode response", "id", resp.ID.String(), "error", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
}

// readFrame reads the next message up to maxBody bytes. Anything past the
// limit is drained and reported through tooLarge.
func (s *Server) readFrame(ctx context.Context, conn *websocket.Conn) (typ websocket.MessageType, data []byte, tooLarge bool, err error) {
	typ, r, err := conn.Reader(ctx)
	if err != nil {
		return 0, nil, false, err
	}
	data, err = io.ReadAll(io.LimitReader(r, s.maxBody+1))
	if err != nil {
		return 0, nil, false, err
	}
	if int64(len(data)) <= s.maxBody {
		return typ, data, false, nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return 0, nil, false, err
	}
	return typ, nil, true, nil
}

func (s *Server) handleFrame(ctx context.Context, session *mcp.Session, typ websocket.MessageType, data []byte, logger *slog.Logger) *mcp.Response {
	if typ != websocket.MessageText {
		logger.Warn("binary websocket frame rejected", "bytes", len(data))
		r := mcp.NewErrorResponse(mcp.NullID, mcp.NewInvalidRequest("binary frames are not supported"))
		return &r
	}

	req, rpcErr := mcp.DecodeRequest(data)
	if rpcErr != nil {
		logger.Debug("undecodable websocket frame", "error", rpcErr)
		r := mcp.NewErrorResponse(mcp.NullID, rpcErr)
		return &r
	}
	return session.Handle(ctx, req)
}
