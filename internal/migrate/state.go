package migrate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/clintrovert/trac2github/pkg/types"
)

// State is the progress of one ticket through the engine
type State int

const (
	Pending State = iota
	Created
	Replaying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Created:
		return "created"
	case Replaying:
		return "replaying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TicketError halts a run. State is where the ticket was when it failed;
// from Created onwards the issue exists on GitHub and its history may be
// incomplete.
type TicketError struct {
	TicketID int
	State    State
	Err      error
}

func (e *TicketError) Error() string {
	return fmt.Sprintf("ticket #%d failed while %s: %v", e.TicketID, e.State, e.Err)
}

func (e *TicketError) Unwrap() error {
	return e.Err
}

// ticketRun is the state of one ticket migration
type ticketRun struct {
	ticket types.Ticket
	state  State
	issue  int
	// labels is the label set currently on the issue.
	labels []string
	logger *zap.Logger
}

func (r *ticketRun) transition(to State) {
	r.logger.Debug("ticket state",
		zap.Stringer("from", r.state),
		zap.Stringer("to", to),
	)
	r.state = to
}
