package ops

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/yanun0323/logs"

	"omes/internal/lifecycle"
	"omes/internal/omes"
)

const unixNetwork = "unix"

var (
	// ErrEmptySocketPath is returned when no socket path is configured.
	ErrEmptySocketPath = errors.New("ops: empty socket path")
	// ErrPathNotSocket is returned when the path exists and is not a socket.
	ErrPathNotSocket = errors.New("ops: path exists and is not a socket")
)

// CommandServer exposes operator commands over a Unix domain socket. The
// protocol is one command per line, one "OK", "FAILED" or "UNSUPPORTED"
// response line per command.
type CommandServer struct {
	path string
	svc  *omes.Service

	mu sync.Mutex
	ln *net.UnixListener
	wg sync.WaitGroup
}

// NewCommandServer creates a server for the given socket path.
func NewCommandServer(path string, svc *omes.Service) (*CommandServer, error) {
	if path == "" {
		return nil, ErrEmptySocketPath
	}
	return &CommandServer{path: path, svc: svc}, nil
}

// Path returns the configured socket path.
func (s *CommandServer) Path() string {
	return s.path
}

// Start listens on the socket and serves connections until Close or context
// cancellation. A stale socket file is removed first.
func (s *CommandServer) Start(ctx context.Context) error {
	if err := removeIfExists(s.path); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &net.UnixAddr{Name: s.path, Net: unixNetwork})
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)
	logs.Infof("command socket listening on %s", s.path)
	return nil
}

// Close stops the listener and waits for the accept loop.
func (s *CommandServer) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}

func (s *CommandServer) acceptLoop(ctx context.Context, ln *net.UnixListener) {
	defer s.wg.Done()
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logs.Errorf("command socket accept: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *CommandServer) serve(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ack, detail := s.dispatch(ctx, line)
		if _, err := fmt.Fprintf(conn, "%s %s\n", ackWord(ack), detail); err != nil {
			logs.Warnf("command socket write: %v", err)
			return
		}
	}
}

func (s *CommandServer) dispatch(ctx context.Context, line string) (omes.Ack, string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "state":
		return s.svc.Execute(ctx, omes.Command{Kind: omes.CommandEvaluateState})
	case "reset":
		return s.svc.Execute(ctx, omes.Command{Kind: omes.CommandReset})
	case "line":
		if len(fields) != 2 {
			return omes.AckFailed, "usage: line <warmup|recovery|active|reset|stop>"
		}
		target, ok := stateByName(fields[1])
		if !ok {
			return omes.AckFailed, fmt.Sprintf("unknown state %q", fields[1])
		}
		return s.svc.Execute(ctx, omes.Command{Kind: omes.CommandLineAction, Action: target})
	case "order":
		if len(fields) != 2 {
			return omes.AckFailed, "usage: order <sid>"
		}
		sid, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return omes.AckFailed, fmt.Sprintf("bad sid %q", fields[1])
		}
		return s.svc.Execute(ctx, omes.Command{Kind: omes.CommandPrintOrderInfo, OrderSid: sid})
	default:
		return omes.AckNotSupported, fmt.Sprintf("unknown command %q", fields[0])
	}
}

func stateByName(name string) (lifecycle.State, bool) {
	switch name {
	case "warmup":
		return lifecycle.StateWarmup, true
	case "recovery":
		return lifecycle.StateRecovery, true
	case "active":
		return lifecycle.StateActive, true
	case "reset":
		return lifecycle.StateReset, true
	case "stop":
		return lifecycle.StateStopped, true
	default:
		return 0, false
	}
}

func ackWord(a omes.Ack) string {
	switch a {
	case omes.AckOK:
		return "OK"
	case omes.AckFailed:
		return "FAILED"
	default:
		return "UNSUPPORTED"
	}
}

// removeIfExists unlinks a stale socket file, refusing to touch anything
// that is not a socket.
func removeIfExists(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return ErrPathNotSocket
	}
	return os.Remove(path)
}
