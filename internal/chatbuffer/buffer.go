// Package chatbuffer implements the bounded, monotonically-indexed
// ring of observable events (C5) that the surrounding web layer polls.
// It is the sole consumer-facing record of what happened on the wire;
// nothing here survives process exit (spec.md §1 Non-goals).
package chatbuffer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind tags the variant of a ChatMessage.
type Kind int

const (
	KindSystem Kind = iota
	KindScreenshot
	KindScreenshotComparison
	KindAIResponse
	KindNarration
)

// Message is one entry in the ring. Only the fields relevant to Kind
// are populated; this mirrors spec.md §3's tagged union without
// requiring a Go sum type (interfaces would cost every consumer a type
// switch for no benefit here — every field is cheap and optional).
type Message struct {
	ID        uint64
	SessionID uuid.UUID
	Kind      Kind
	Timestamp time.Time

	// system
	Content string

	// screenshot / screenshot_comparison
	ImageDataURI    string
	PreviousURI     string
	GameState       GameState
	SequenceNumber  uint64

	// ai_response
	Text         string
	Actions      []string
	ErrorDetails string

	// narration
	Narration string
}

// GameState is the opaque-to-the-core position/direction record
// decoded by the emulator side (spec.md §3).
type GameState struct {
	Direction string
	X         int
	Y         int
	MapID     int
}

// Capacity is the fixed ring size (spec.md invariant 1).
const Capacity = 100

// Buffer is a thread-safe, fixed-capacity ring of Messages.
type Buffer struct {
	mu            sync.Mutex
	entries       []Message
	head          int // index of the oldest live entry
	size          int // number of live entries, <= Capacity
	totalAppended uint64
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{entries: make([]Message, Capacity)}
}

// Append assigns the next monotonic id and timestamp, then inserts m,
// evicting the oldest entry if the ring is full.
func (b *Buffer) Append(m Message) Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalAppended++
	m.ID = b.totalAppended
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	if b.size < Capacity {
		idx := (b.head + b.size) % Capacity
		b.entries[idx] = m
		b.size++
	} else {
		b.entries[b.head] = m
		b.head = (b.head + 1) % Capacity
	}
	return m
}

// Snapshot is the shape the HTTP poll endpoint forwards to clients.
type Snapshot struct {
	Messages      []Message
	HeadID        uint64
	TailID        uint64
	TotalAppended uint64
	Capacity      int
}

// headIDLocked returns the id of the oldest live entry, or 0 if the buffer is empty.
func (b *Buffer) headIDLocked() uint64 {
	if b.size == 0 {
		return 0
	}
	return b.entries[b.head].ID
}

// Snapshot returns the subset of live messages with id > sinceID (or
// every live message if sinceID is absent/zero or below the current
// head id, per spec.md §4.5). Clients detect rotation by observing a
// returned HeadID greater than what they last saw as the lowest id.
func (b *Buffer) Snapshot(sinceID uint64) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	head := b.headIDLocked()
	from := sinceID
	if from < head {
		from = 0
	}

	out := make([]Message, 0, b.size)
	for i := 0; i < b.size; i++ {
		m := b.entries[(b.head+i)%Capacity]
		if m.ID > from {
			out = append(out, m)
		}
	}

	tail := uint64(0)
	if b.size > 0 {
		tail = b.entries[(b.head+b.size-1)%Capacity].ID
	}

	return Snapshot{
		Messages:      out,
		HeadID:        head,
		TailID:        tail,
		TotalAppended: b.totalAppended,
		Capacity:      Capacity,
	}
}
