package domain

import (
	"errors"
	"fmt"
	"time"
)

// Event is a callback delivered by the download engine.
// The set of implementations is closed; consumers switch on the concrete type.
type Event interface {
	Operation() *Operation
	Kind() EventKind
	isEvent()
}

// EventKind names an engine callback on the wire
type EventKind string

const (
	EventAdded          EventKind = "added"
	EventCancelled      EventKind = "cancelled"
	EventCompleted      EventKind = "completed"
	EventDeleted        EventKind = "deleted"
	EventBlockUpdated   EventKind = "block_updated"
	EventError          EventKind = "error"
	EventPaused         EventKind = "paused"
	EventProgress       EventKind = "progress"
	EventQueued         EventKind = "queued"
	EventRemoved        EventKind = "removed"
	EventResumed        EventKind = "resumed"
	EventStarted        EventKind = "started"
	EventWaitingNetwork EventKind = "waiting_network"
)

// DownloadBlock is one ranged segment of a multi-part transfer
type DownloadBlock struct {
	Index           int   `json:"index"`
	StartByte       int64 `json:"start_byte"`
	EndByte         int64 `json:"end_byte"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
}

type eventBase struct {
	Op *Operation
}

func (e eventBase) Operation() *Operation { return e.Op }
func (eventBase) isEvent()                {}

type (
	Added     struct{ eventBase }
	Cancelled struct{ eventBase }
	Completed struct{ eventBase }
	Deleted   struct{ eventBase }
	Paused    struct{ eventBase }
	Removed   struct{ eventBase }
	Resumed   struct{ eventBase }

	WaitingNetwork struct{ eventBase }

	BlockUpdated struct {
		eventBase
		Block       DownloadBlock
		TotalBlocks int
	}

	Errored struct {
		eventBase
		Err error
	}

	Progress struct {
		eventBase
		ETA            time.Duration
		BytesPerSecond int64
	}

	Queued struct {
		eventBase
		WaitingOnNetwork bool
	}

	Started struct {
		eventBase
		Blocks      []DownloadBlock
		TotalBlocks int
	}
)

func (Added) Kind() EventKind          { return EventAdded }
func (Cancelled) Kind() EventKind      { return EventCancelled }
func (Completed) Kind() EventKind      { return EventCompleted }
func (Deleted) Kind() EventKind        { return EventDeleted }
func (Paused) Kind() EventKind         { return EventPaused }
func (Removed) Kind() EventKind        { return EventRemoved }
func (Resumed) Kind() EventKind        { return EventResumed }
func (WaitingNetwork) Kind() EventKind { return EventWaitingNetwork }
func (BlockUpdated) Kind() EventKind   { return EventBlockUpdated }
func (Errored) Kind() EventKind        { return EventError }
func (Progress) Kind() EventKind       { return EventProgress }
func (Queued) Kind() EventKind         { return EventQueued }
func (Started) Kind() EventKind        { return EventStarted }

func NewAdded(op *Operation) Event          { return Added{eventBase{op}} }
func NewCancelled(op *Operation) Event      { return Cancelled{eventBase{op}} }
func NewCompleted(op *Operation) Event      { return Completed{eventBase{op}} }
func NewDeleted(op *Operation) Event        { return Deleted{eventBase{op}} }
func NewPaused(op *Operation) Event         { return Paused{eventBase{op}} }
func NewRemoved(op *Operation) Event        { return Removed{eventBase{op}} }
func NewResumed(op *Operation) Event        { return Resumed{eventBase{op}} }
func NewWaitingNetwork(op *Operation) Event { return WaitingNetwork{eventBase{op}} }

func NewBlockUpdated(op *Operation, block DownloadBlock, totalBlocks int) Event {
	return BlockUpdated{eventBase: eventBase{op}, Block: block, TotalBlocks: totalBlocks}
}

func NewErrored(op *Operation, err error) Event {
	return Errored{eventBase: eventBase{op}, Err: err}
}

func NewProgress(op *Operation, eta time.Duration, bytesPerSecond int64) Event {
	return Progress{eventBase: eventBase{op}, ETA: eta, BytesPerSecond: bytesPerSecond}
}

func NewQueued(op *Operation, waitingOnNetwork bool) Event {
	return Queued{eventBase: eventBase{op}, WaitingOnNetwork: waitingOnNetwork}
}

func NewStarted(op *Operation, blocks []DownloadBlock, totalBlocks int) Event {
	return Started{eventBase: eventBase{op}, Blocks: blocks, TotalBlocks: totalBlocks}
}

// EventEnvelope is the wire form of an engine callback
type EventEnvelope struct {
	Kind             EventKind       `json:"kind"`
	Operation        Operation       `json:"operation"`
	Error            string          `json:"error,omitempty"`
	ETAMillis        int64           `json:"eta_ms,omitempty"`
	BytesPerSecond   int64           `json:"bytes_per_second,omitempty"`
	WaitingOnNetwork bool            `json:"waiting_on_network,omitempty"`
	Block            *DownloadBlock  `json:"block,omitempty"`
	Blocks           []DownloadBlock `json:"blocks,omitempty"`
	TotalBlocks      int             `json:"total_blocks,omitempty"`
}

// Event converts the envelope into its typed event
func (e EventEnvelope) Event() (Event, error) {
	op := e.Operation.Clone()
	if op.Status != "" && !ValidateStatus(op.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, op.Status)
	}
	implied, ok := ImpliedStatus(e.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if op.Status == "" {
		op.Status = implied
	}

	switch e.Kind {
	case EventAdded:
		return NewAdded(op), nil
	case EventCancelled:
		return NewCancelled(op), nil
	case EventCompleted:
		return NewCompleted(op), nil
	case EventDeleted:
		return NewDeleted(op), nil
	case EventPaused:
		return NewPaused(op), nil
	case EventRemoved:
		return NewRemoved(op), nil
	case EventResumed:
		return NewResumed(op), nil
	case EventWaitingNetwork:
		return NewWaitingNetwork(op), nil
	case EventBlockUpdated:
		var block DownloadBlock
		if e.Block != nil {
			block = *e.Block
		}
		return NewBlockUpdated(op, block, e.TotalBlocks), nil
	case EventError:
		msg := e.Error
		if msg == "" {
			msg = op.ErrorMessage
		}
		if msg == "" {
			msg = "unknown engine error"
		}
		op.ErrorMessage = msg
		return NewErrored(op, errors.New(msg)), nil
	case EventProgress:
		return NewProgress(op, time.Duration(e.ETAMillis)*time.Millisecond, e.BytesPerSecond), nil
	case EventQueued:
		return NewQueued(op, e.WaitingOnNetwork), nil
	default:
		return NewStarted(op, e.Blocks, e.TotalBlocks), nil
	}
}

// ImpliedStatus returns the status a callback implies when the engine leaves it blank
func ImpliedStatus(kind EventKind) (OperationStatus, bool) {
	switch kind {
	case EventAdded:
		return StatusAdded, true
	case EventCancelled:
		return StatusCancelled, true
	case EventCompleted:
		return StatusCompleted, true
	case EventDeleted, EventRemoved:
		return StatusRemoved, true
	case EventPaused:
		return StatusPaused, true
	case EventResumed, EventQueued:
		return StatusQueued, true
	case EventWaitingNetwork:
		return StatusWaitingOnNetwork, true
	case EventBlockUpdated, EventProgress, EventStarted:
		return StatusDownloading, true
	case EventError:
		return StatusError, true
	}
	return "", false
}

// EnvelopeFor converts a typed event back to its wire form
func EnvelopeFor(ev Event) EventEnvelope {
	env := EventEnvelope{Kind: ev.Kind()}
	if op := ev.Operation(); op != nil {
		env.Operation = *op.Clone()
	}
	switch e := ev.(type) {
	case Errored:
		if e.Err != nil {
			env.Error = e.Err.Error()
		}
	case Progress:
		env.ETAMillis = e.ETA.Milliseconds()
		env.BytesPerSecond = e.BytesPerSecond
	case Queued:
		env.WaitingOnNetwork = e.WaitingOnNetwork
	case BlockUpdated:
		block := e.Block
		env.Block = &block
		env.TotalBlocks = e.TotalBlocks
	case Started:
		env.Blocks = e.Blocks
		env.TotalBlocks = e.TotalBlocks
	}
	return env
}
