package actuation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommandKind identifies the operation a command performs.
type CommandKind string

// Command kinds.
const (
	KindStart   CommandKind = "start"
	KindStop    CommandKind = "stop"
	KindStopAll CommandKind = "stop_all"
	KindPower   CommandKind = "power"
)

// Status is the terminal state of a command.
type Status string

// Terminal command states.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Command is one actuation request, created by the coordinator and
// submitted to a gateway backend.
type Command struct {
	ID        uuid.UUID     `json:"id"`
	StationID int           `json:"station_id,omitempty"`
	Kind      CommandKind   `json:"kind"`
	Duration  time.Duration `json:"duration,omitempty"`
	IssuedAt  time.Time     `json:"issued_at"`
}

// newCommand creates a command with a fresh correlation id.
func newCommand(kind CommandKind, stationID int, duration time.Duration) Command {
	return Command{
		ID:        uuid.New(),
		StationID: stationID,
		Kind:      kind,
		Duration:  duration,
		IssuedAt:  time.Now().UTC(),
	}
}

// Result is the terminal outcome of a command.
type Result struct {
	Status Status
	Err    error
}

// Pending is a handle on a dispatched command whose completion will be
// reported asynchronously. Await blocks until the backend resolves the
// command or the context expires, whichever comes first.
type Pending struct {
	cmd  Command
	ch   chan Result
	once sync.Once
}

func newPending(cmd Command) *Pending {
	return &Pending{
		cmd: cmd,
		ch:  make(chan Result, 1),
	}
}

// Command returns the command this handle tracks.
func (p *Pending) Command() Command {
	return p.cmd
}

// resolve delivers the terminal result. Safe to call more than once;
// only the first call wins (a late feedback message after a timeout must
// not panic or block).
func (p *Pending) resolve(r Result) {
	p.once.Do(func() {
		p.ch <- r
	})
}

// Await blocks until the command reaches a terminal state or ctx expires.
// On expiry the result is StatusTimedOut with ErrTimeout; the caller is
// expected to issue a corrective stop if the physical state is ambiguous.
func (p *Pending) Await(ctx context.Context) Result {
	select {
	case r := <-p.ch:
		return r
	case <-ctx.Done():
		return Result{Status: StatusTimedOut, Err: ErrTimeout}
	}
}
