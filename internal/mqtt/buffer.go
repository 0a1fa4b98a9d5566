package mqtt

// bufferedMsg is a formatted event waiting for the broker to come back.
type bufferedMsg struct {
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the newest capacity messages, dropping the oldest first.
// Not safe for concurrent use; the Publisher holds its lock around it.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	dropping bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

// push appends msg. It reports true the first time a message is dropped
// since the last drain, so the caller logs an overflow once per outage.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	capacity := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % capacity
	if r.count < capacity {
		r.count++
		return false
	}
	first := !r.dropping
	r.dropping = true
	return first
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	capacity := len(r.buf)
	out := make([]bufferedMsg, 0, r.count)
	for i := r.head - r.count; i < r.head; i++ {
		out = append(out, r.buf[(i+capacity)%capacity])
	}
	r.head, r.count, r.dropping = 0, 0, false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
