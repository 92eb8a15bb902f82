package scheduler

// errorRing keeps the most recent error strings, oldest first. Callers
// hold the scheduler mutex; the ring itself is not synchronized.
type errorRing struct {
	buf  []string
	next int
	full bool
}

func newErrorRing(n int) *errorRing {
	if n <= 0 {
		n = 32
	}
	return &errorRing{buf: make([]string, n)}
}

func (r *errorRing) add(s string) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *errorRing) snapshot() []string {
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}
