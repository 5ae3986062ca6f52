package session

import (
	"sync"

	"peerchat/internal/domain"
)

// EventKind discriminates Event.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventText
	EventFile
	EventLog
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventText:
		return "text"
	case EventFile:
		return "file"
	case EventLog:
		return "log"
	default:
		return "unknown"
	}
}

// Event is one host notification. Only the fields for Kind are set.
type Event struct {
	Kind     EventKind
	Peer     string             // Connected
	Err      error              // Disconnected
	Message  domain.ChatMessage // Text
	FromPeer bool               // Text, File
	File     domain.FileEvent   // File
	Line     string             // Log
}

// EventQueue is a Host that turns callbacks into a stream of Events, so a
// host can handle them on its own goroutine. Callbacks block while the
// buffer is full, which in turn stalls the receive loop.
type EventQueue struct {
	ch        chan Event
	quit      chan struct{}
	closeOnce sync.Once
}

func NewEventQueue(size int) *EventQueue {
	return &EventQueue{ch: make(chan Event, size), quit: make(chan struct{})}
}

// Events is never closed; stop reading after Disconnected or Session.Done.
func (q *EventQueue) Events() <-chan Event { return q.ch }

// Close drops all further events and unblocks pending callbacks.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() { close(q.quit) })
}

func (q *EventQueue) push(e Event) {
	select {
	case <-q.quit:
		return
	default:
	}
	select {
	case q.ch <- e:
	case <-q.quit:
	}
}

func (q *EventQueue) OnConnected(peer string) {
	q.push(Event{Kind: EventConnected, Peer: peer})
}

func (q *EventQueue) OnDisconnected(err error) {
	q.push(Event{Kind: EventDisconnected, Err: err})
}

func (q *EventQueue) OnText(msg domain.ChatMessage, fromPeer bool) {
	q.push(Event{Kind: EventText, Message: msg, FromPeer: fromPeer})
}

func (q *EventQueue) OnFile(ev domain.FileEvent) {
	q.push(Event{Kind: EventFile, File: ev, FromPeer: ev.FromPeer})
}

func (q *EventQueue) Log(msg string) {
	q.push(Event{Kind: EventLog, Line: msg})
}

// Compile-time assertion that EventQueue implements domain.Host.
var _ domain.Host = (*EventQueue)(nil)
