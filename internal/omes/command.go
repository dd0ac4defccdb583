package omes

import (
	"context"
	"fmt"

	"github.com/yanun0323/logs"

	"omes/internal/lifecycle"
	"omes/internal/schema"
)

// CommandKind identifies an operator command.
type CommandKind uint16

const (
	// CommandEvaluateState reports the line state and clear status.
	CommandEvaluateState CommandKind = iota + 1
	// CommandReset drives the line to RESET and clears admission state.
	CommandReset
	// CommandLineAction drives the line to an explicit lifecycle state.
	CommandLineAction
	// CommandPrintOrderInfo dumps a live request by sid.
	CommandPrintOrderInfo
)

// Command is one operator command against the service.
type Command struct {
	Kind     CommandKind
	Action   lifecycle.State
	OrderSid uint64
}

// Ack is the operator command outcome.
type Ack uint16

const (
	AckOK Ack = iota + 1
	AckFailed
	AckNotSupported
)

// Execute runs an operator command and returns the ack with a detail line.
func (s *Service) Execute(ctx context.Context, cmd Command) (Ack, string) {
	switch cmd.Kind {
	case CommandEvaluateState:
		return AckOK, s.evaluateState()
	case CommandReset:
		return s.reset(ctx)
	case CommandLineAction:
		if err := s.line.Transition(ctx, cmd.Action); err != nil {
			return AckFailed, err.Error()
		}
		return AckOK, s.line.State().String()
	case CommandPrintOrderInfo:
		return s.printOrderInfo(cmd.OrderSid)
	default:
		return AckNotSupported, fmt.Sprintf("unknown command kind %d", cmd.Kind)
	}
}

func (s *Service) evaluateState() string {
	return fmt.Sprintf("state=%s clear=%t exposure=%d/%d requests=%d",
		s.line.State(), s.IsClear() && s.line.IsClear(),
		s.exp.Current(), s.exp.Initial(), s.reg.Len())
}

func (s *Service) reset(ctx context.Context) (Ack, string) {
	if err := s.line.Transition(ctx, lifecycle.StateReset); err != nil {
		return AckFailed, err.Error()
	}
	s.Clear()
	if !s.IsClear() || !s.line.IsClear() {
		logs.Errorf("reset left residual state, line %s", s.line.State())
		return AckFailed, "residual state after reset"
	}
	return AckOK, "reset complete"
}

func (s *Service) printOrderInfo(sid uint64) (Ack, string) {
	req, ok := s.reg.Get(sid)
	if !ok {
		return AckFailed, fmt.Sprintf("no live request for sid %d", sid)
	}
	base := req.Base()
	switch r := req.(type) {
	case *schema.NewOrderRequest:
		return AckOK, fmt.Sprintf("sid=%d kind=new symbol=%d side=%d price=%d qty=%d guessed=%t",
			sid, base.SymbolID, r.Side, r.Price, r.Qty, r.Guessed)
	case *schema.CancelOrderRequest:
		return AckOK, fmt.Sprintf("sid=%d kind=cancel symbol=%d target=%d force=%t",
			sid, base.SymbolID, r.OrderSidToCancel, r.Force)
	default:
		return AckOK, fmt.Sprintf("sid=%d kind=%d symbol=%d", sid, base.Kind, base.SymbolID)
	}
}
