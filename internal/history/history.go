// Package history implements the bounded in-memory backlog of broadcast
// payloads, plus per-client cursors used to replay recent traffic to a
// newly joined connection.
package history

// entry is one stored payload, tagged with its monotonic sequence number.
type entry struct {
	seq     uint64
	payload []byte
}

// History is a bounded ring of (sequence, payload) pairs, newest-first.
// Sequence numbers start at 1 and are never reused. It is owned exclusively
// by the event loop goroutine; nothing else mutates it, so no
// synchronisation is required (§5 of the spec).
type History struct {
	limit            int
	newClientBacklog int
	nextSeq          uint64
	entries          []entry // entries[0] is newest
}

// DefaultLimit and DefaultBacklog match the source's defaults
// (History(limit=50), new_client_backlog=5).
const (
	DefaultLimit   = 50
	DefaultBacklog = 5
)

// New creates a History bounded to limit entries, handing each new client a
// cursor with backlog entries of replay depth.
func New(limit, backlog int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if backlog < 0 {
		backlog = DefaultBacklog
	}
	return &History{
		limit:            limit,
		newClientBacklog: backlog,
		nextSeq:          1,
		entries:          make([]entry, 0, limit),
	}
}

// Append pushes payload to the front of the history with the next sequence
// number, evicting the oldest entry once the limit is reached. Sequence
// numbers are strictly increasing and never reused.
func (h *History) Append(payload []byte) uint64 {
	seq := h.nextSeq
	h.nextSeq++

	h.entries = append(h.entries, entry{})
	copy(h.entries[1:], h.entries[:len(h.entries)-1])
	h.entries[0] = entry{seq: seq, payload: payload}

	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
	return seq
}

// Len reports the number of entries currently retained.
func (h *History) Len() int { return len(h.entries) }

// Cursor is a snapshot reference into the history's front, bounded by a
// backlog count. It is a value that copies the payloads it can see at
// creation time, so it has no lifetime entanglement with the History it
// was created from and never observes later appends (§9 design note:
// "prefer a snapshot strategy to remove lifetime entanglement").
type Cursor struct {
	payloads [][]byte // newest-first, already trimmed to backlog depth
}

// NewCursor copies the newest payloads present at this moment, up to the
// History's configured backlog depth, into a new cursor. A
// cursor created immediately after Append includes that append; it never
// observes appends made after its own creation.
func (h *History) NewCursor() Cursor {
	backlog := h.newClientBacklog
	if backlog > len(h.entries) {
		backlog = len(h.entries)
	}
	payloads := make([][]byte, backlog)
	for i := 0; i < backlog; i++ {
		payloads[i] = h.entries[i].payload
	}
	return Cursor{payloads: payloads}
}

// Payloads returns the cursor's backlog in raw iteration order: newest
// message first, walking the history front-to-back (§4.3). Replaying this
// to a client on the wire in chronological order is the dispatch layer's
// job (internal/chatloop), not the cursor's — see Cursor.Chronological.
func (c Cursor) Payloads() [][]byte { return c.payloads }

// Chronological returns the cursor's backlog oldest-first, the order the
// event loop sends it to a replaying client in (resolves spec Open
// Question 3: the source iterated the cursor and sent it reversed,
// producing oldest-first on the wire — made explicit here instead of
// relying on a double-reverse at the call site).
func (c Cursor) Chronological() [][]byte {
	out := make([][]byte, len(c.payloads))
	for i, p := range c.payloads {
		out[len(out)-1-i] = p
	}
	return out
}
