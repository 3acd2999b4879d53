package mqtt

import "log"

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 256

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages published while offline.
// Callers synchronize access.
type ringBuffer struct {
	msgs    []bufferedMsg
	next    int // write position
	n       int
	dropped int // messages overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{msgs: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	c := len(r.msgs)
	r.msgs[r.next] = msg
	r.next = (r.next + 1) % c
	if r.n < c {
		r.n++
		return
	}
	if r.dropped == 0 {
		log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", c)
	}
	r.dropped++
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.n == 0 {
		return nil
	}
	c := len(r.msgs)
	out := make([]bufferedMsg, 0, r.n)
	for i := r.next - r.n; i < r.next; i++ {
		out = append(out, r.msgs[(i+c)%c])
	}
	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while offline", r.dropped)
	}
	r.next, r.n, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.n
}
