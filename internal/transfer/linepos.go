package transfer

// linePositions is a bounded circular array of byte positions of
// recently-written line terminators, addressed by (array, head, length,
// capacity) — the same shape as ratecalc's history ring.
type linePositions struct {
	positions []uint64
	head      int
	length    int
}

func newLinePositions(capacity int) linePositions {
	return linePositions{positions: make([]uint64, capacity)}
}

// push records the output byte position of a newly written delimiter.
func (l *linePositions) push(pos uint64) {
	size := len(l.positions)
	if size == 0 {
		return
	}
	if l.length < size {
		l.positions[(l.head+l.length)%size] = pos
		l.length++
		return
	}
	l.positions[l.head] = pos
	l.head = (l.head + 1) % size
}

// at returns the i-th oldest recorded delimiter position.
func (l *linePositions) at(i int) uint64 {
	return l.positions[(l.head+i)%len(l.positions)]
}

// countAbove counts delimiter positions strictly greater than
// lastConsumed, walking backward from the newest entry until it finds
// one at or before lastConsumed (the ring is monotonically increasing).
func (l *linePositions) countAbove(lastConsumed uint64) int {
	count := 0
	for i := l.length - 1; i >= 0; i-- {
		if l.at(i) > lastConsumed {
			count++
		} else {
			break
		}
	}
	return count
}
