package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxMessageSize bounds a single encoded request on every transport.
const MaxMessageSize = 1 << 20

// DecodeRequest parses one request. Malformed JSON yields a parse error;
// a well-formed message that is not a request yields an invalid-request error.
func DecodeRequest(data []byte) (Request, *Error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Request{}, NewParseError("empty message")
	}
	if data[0] != '{' {
		if !json.Valid(data) {
			return Request{}, NewParseError("invalid JSON")
		}
		return Request{}, NewInvalidRequest("request must be a JSON object")
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || !json.Valid(data) {
			return Request{}, NewParseError("invalid JSON: " + err.Error())
		}
		return Request{}, NewInvalidRequest("invalid request: " + err.Error())
	}
	return req, nil
}

// EncodeResponse serializes a response.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

// DecodeResponse is the client-side counterpart of EncodeResponse.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Transport reads newline-delimited JSON-RPC messages from a stream and
// writes responses back, one per line. It is the stdio front-end.
type Transport struct {
	scanner *bufio.Scanner
	writer  io.Writer
	mu      sync.Mutex
}

func NewTransport(r io.Reader, w io.Writer) *Transport {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)
	return &Transport{scanner: s, writer: w}
}

// ReadMessage returns the requests on the next non-blank line. A line holding
// a JSON array is a batch. io.EOF means the stream ended; an *Error means the
// line could not be decoded and the stream can still be read.
func (t *Transport) ReadMessage() ([]Request, error) {
	for {
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		data := bytes.TrimSpace(t.scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		if data[0] == '[' {
			var batch []json.RawMessage
			if err := json.Unmarshal(data, &batch); err != nil {
				return nil, NewParseError("invalid JSON: " + err.Error())
			}
			if len(batch) == 0 {
				return nil, NewInvalidRequest("empty batch")
			}
			reqs := make([]Request, 0, len(batch))
			for _, raw := range batch {
				req, rpcErr := DecodeRequest(raw)
				if rpcErr != nil {
					return nil, rpcErr
				}
				reqs = append(reqs, req)
			}
			return reqs, nil
		}

		req, rpcErr := DecodeRequest(data)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return []Request{req}, nil
	}
}

func (t *Transport) WriteResponse(resp Response) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.writer.Write(data)
	return err
}

func (t *Transport) WriteBatchResponse(responses []Response) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	data = append(data, '\n')
	_, err = t.writer.Write(data)
	return err
}

// Serve is the stdio main loop. Reads messages, dispatches them in order,
// writes responses. Returns nil on clean shutdown (EOF or ctx done), error if
// the stream breaks.
func (s *Server) Serve(ctx context.Context, t *Transport) error {
	session := s.NewSession("stdio")
	defer session.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msgs, err := t.ReadMessage()
		if err == io.EOF {
			return nil
		}
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			s.logger.Warn("undecodable message", "error", rpcErr)
			// null ID: we couldn't parse the request, so we don't know the ID
			if writeErr := t.WriteResponse(NewErrorResponse(NullID, rpcErr)); writeErr != nil {
				return writeErr
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		if len(msgs) == 1 {
			if resp := session.Handle(ctx, msgs[0]); resp != nil {
				if err := t.WriteResponse(*resp); err != nil {
					return err
				}
			}
			continue
		}

		// Batch: collect responses, skip nil (suppressed notifications), write as JSON array
		var responses []Response
		for _, msg := range msgs {
			if resp := session.Handle(ctx, msg); resp != nil {
				responses = append(responses, *resp)
			}
		}
		if len(responses) > 0 {
			if err := t.WriteBatchResponse(responses); err != nil {
				return err
			}
		}
	}
}
