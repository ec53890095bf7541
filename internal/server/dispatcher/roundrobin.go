package dispatcher

// roundRobin yields slot ids 0, 1, ..., n-1, 0, 1, ... in acceptance order.
type roundRobin struct {
	n    uint64
	next uint64
}

func newRoundRobin(n int) *roundRobin {
	return &roundRobin{n: uint64(n)}
}

// Next returns the slot for the next connection.
func (r *roundRobin) Next() int {
	slot := r.next % r.n
	r.next++
	return int(slot)
}
