// Package mcp serves the dispatcher to a local client as newline-delimited
// JSON-RPC 2.0 over a pair of streams, normally stdin and stdout.
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

	"github.com/triage-ai/sqlgate/internal/dispatch"
	"go.uber.org/zap"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the sender expects no response.
func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError"`
}

// Server handles each request on its own goroutine; responses are written
// whole, one per line, in completion order.
type Server struct {
	dispatcher *dispatch.Dispatcher
	name       string
	version    string
	logger     *zap.Logger

	mu  sync.Mutex // serializes writes to out
	out io.Writer
}

// NewServer creates a Server advertising itself as name/version.
func NewServer(d *dispatch.Dispatcher, name, version string, logger *zap.Logger) *Server {
	return &Server{
		dispatcher: d,
		name:       name,
		version:    version,
		logger:     logger,
	}
}

// Serve reads requests from in until it is exhausted or ctx is cancelled,
// and waits for in-flight requests before returning.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("Serve: %w", err)
		case line := <-lines:
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handleMessage(ctx, line)
			}()
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeError(json.RawMessage("null"), CodeParseError, "parse error: "+err.Error())
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		if !req.isNotification() {
			s.writeError(req.ID, CodeInvalidRequest, "invalid request")
		}
		return
	}

	result, rpcErr := s.dispatch(ctx, &req)
	if req.isNotification() {
		return
	}
	if rpcErr != nil {
		s.writeError(req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.write(response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, req *request) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{"name": s.name, "version": s.version},
		}, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": s.dispatcher.Operations()}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		if req.isNotification() {
			// notifications/initialized, notifications/cancelled and the like
			return nil, nil
		}
		return nil, &rpcError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params callParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	if params.Name == "" {
		return nil, &rpcError{Code: CodeInvalidParams, Message: "invalid params: name is required"}
	}

	args, err := dispatch.DecodeArguments(params.Arguments)
	if err != nil {
		return nil, &rpcError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}

	res := s.dispatcher.Handle(ctx, dispatch.Call{
		Operation: params.Name,
		Arguments: args,
		Transport: "stdio",
	})
	return callResult{
		Content: []textContent{{Type: "text", Text: res.Text}},
		IsError: res.IsError,
	}, nil
}

func (s *Server) writeError(id json.RawMessage, code int, msg string) {
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func (s *Server) write(resp response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		return
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(b); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
