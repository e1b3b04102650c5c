package mcpbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	loggerv2 "rhinobridge/logger/v2"
)

// StdioServer is the line-oriented front-end used by desktop assistants:
// one JSON-RPC message per line on stdin, one JSON document per line on
// stdout, flushed per message so the assistant's read loop sees responses
// in order.
type StdioServer struct {
	translator *Translator
	logger     loggerv2.Logger
	in         io.Reader

	writeMu sync.Mutex
	out     io.Writer
}

// NewStdioServer creates a stdio adapter bound to the process's standard
// streams.
func NewStdioServer(translator *Translator, logger loggerv2.Logger) *StdioServer {
	return NewStdioServerIO(translator, logger, os.Stdin, os.Stdout)
}

// NewStdioServerIO creates a stdio adapter over arbitrary streams. Tests
// use this to drive sessions in memory.
func NewStdioServerIO(translator *Translator, logger loggerv2.Logger, in io.Reader, out io.Writer) *StdioServer {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &StdioServer{translator: translator, logger: logger, in: in, out: out}
}

// Run serves one session until stdin ends, a blank line arrives, or the
// client sends exit. The backend connection is torn down on every return
// path.
func (s *StdioServer) Run(ctx context.Context) error {
	defer s.translator.Close()

	// The initialize payload goes out unsolicited, before any input is
	// read; desktop clients expect it as the first line on stdout.
	if err := s.writeMessage(NewResponse(json.RawMessage("0"), s.translator.InitializeResult())); err != nil {
		return fmt.Errorf("failed to write initialize message: %w", err)
	}

	if err := s.translator.EnsureConnected(ctx); err != nil {
		s.logger.Error("Backend not reachable at startup", err)
		s.notify("warning", fmt.Sprintf("Rhino not reachable yet: %v", err))
	} else {
		s.notify("info", fmt.Sprintf("Connected to Rhino bridge at %s", s.translator.client.Addr()))
	}

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			// Blank line ends the session, mirroring EOF semantics of the
			// original adapter.
			s.logger.Info("Blank input line, ending session")
			return nil
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("Malformed JSON on stdin", loggerv2.String("line", string(line)))
			s.notify("warning", fmt.Sprintf("Invalid JSON: %v", err))
			continue
		}
		if req.Method == "" {
			s.notify("warning", "Invalid message: no method")
			continue
		}

		resp, err := s.handle(ctx, &req)
		if errors.Is(err, ErrSessionEnd) {
			s.notify("info", "Shutting down")
			return nil
		}
		if resp != nil {
			if err := s.writeMessage(resp); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read error: %w", err)
	}
	s.logger.Info("End of stdin, ending session")
	return nil
}

// handle dispatches one request with panic containment: a bug in one
// message must not take the session down.
func (s *StdioServer) handle(ctx context.Context, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling message", fmt.Errorf("%v", r),
				loggerv2.String("method", req.Method))
			err = nil
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = NewErrorResponse(req.ID, NewError(CodeInternalError, "internal error: %v", r))
		}
	}()
	return s.translator.HandleRequest(ctx, req)
}

func (s *StdioServer) writeMessage(msg any) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// os.File writes are unbuffered, so each message is flushed as it is
	// written; ordering matters for the assistant's read loop.
	_, err = s.out.Write(append(encoded, '\n'))
	return err
}

func (s *StdioServer) notify(level, message string) {
	if err := s.writeMessage(NewLogNotification(level, message)); err != nil {
		s.logger.Error("Failed to write log notification", err)
	}
}
