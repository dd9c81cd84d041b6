package bot

import (
	"time"

	"github.com/oxang/groupforge/internal/account"
	"github.com/oxang/groupforge/internal/provision"
)

// State is the conversation state of one operator.
type State int

// Conversation states, in the order the login flow traverses them.
const (
	StateAwaitingSecret State = iota
	StateAwaitingPhone
	StateAwaitingCode
	StateAwaitingSecondFactor
	StateRunning
	StateTerminated
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateAwaitingSecret:
		return "awaiting_secret"
	case StateAwaitingPhone:
		return "awaiting_phone"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// OperatorSession is the typed per-operator conversation record. It is
// created on first contact, mutated by every handler, and destroyed when
// the batch worker finishes or a handler fails terminally. At most one live
// account client per session, and at most one session per operator.
type OperatorSession struct {
	OperatorID   int64
	ChatID       string
	State        State
	Phone        string
	SecondFactor bool
	Client       account.Client
	Worker       *provision.Handle
	UpdatedAt    time.Time
}

// touch refreshes the idle timestamp.
func (s *OperatorSession) touch() {
	s.UpdatedAt = time.Now()
}
