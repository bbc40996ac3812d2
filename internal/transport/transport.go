package transport

import (
	"context"

	"github.com/videobot/broadcast-backend/internal/model"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// OutcomeSent means the transport accepted the message.
	OutcomeSent Outcome = iota
	// OutcomeFailed means a transient delivery error; the recipient may be
	// reachable later but the run does not retry.
	OutcomeFailed
	// OutcomeBlocked means the recipient actively rejects delivery
	// (blocked the bot, deactivated account). Distinct from failed.
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "failed"
	}
}

// MessageTransport delivers one broadcast message to one recipient and
// classifies the result. Implementations must never panic on delivery
// errors; classification is the whole contract.
type MessageTransport interface {
	Send(ctx context.Context, recipient model.User, b *model.Broadcast) Outcome
}
