// Package ratecalc implements the rate calculator: the
// instantaneous and windowed-average transfer rate, ETA, and the
// min/max/mean/stddev statistics for the final --show-stats summary.
//
// The windowed-average algorithm uses a bounded ring of (elapsed,
// total-written) samples: a fixed-capacity circular array addressed by
// head/tail indices rather than a linked structure. An exponential
// moving average was considered and rejected in favor of this exact
// ring-based windowed average, which produces reproducible results
// across runs with identical input timing.
package ratecalc

import "math"

// historyEntry is one sample in the windowed-average ring.
type historyEntry struct {
	elapsed float64
	total   uint64
}

// Calc is the Calc state entity: history ring, running stats, and the
// percentage/ETA counters the display reads each tick.
type Calc struct {
	prevElapsed      float64
	prevRate         float64
	prevTrans        float64
	prevTotalWritten uint64

	currentAvgRate float64

	ring       []historyEntry
	ringHead   int
	ringLen    int
	historyInt float64

	percentage int // [0, 100000], or the 0..200 numeric-mode oscillator

	rateMin, rateMax, rateSum, rateSumSq float64
	measurements                         int64

	initialOffset uint64

	lastTransferred uint64
	lastSize        uint64
	lastSizeKnown   bool
	lastRate        float64
}

// New builds a Calc sized for an average-rate window of windowSeconds:
// history_len = ceil(window/interval)+1.
func New(windowSeconds float64, totalWrittenAtStart uint64) *Calc {
	historyLen, historyInterval := historySizing(windowSeconds)
	return &Calc{
		ring:          make([]historyEntry, historyLen),
		historyInt:    historyInterval,
		rateMin:       math.Inf(1),
		rateMax:       math.Inf(-1),
		initialOffset: totalWrittenAtStart,
	}
}

func historySizing(windowSeconds float64) (length int, interval float64) {
	if windowSeconds < 20 {
		return int(math.Ceil(windowSeconds)) + 1, 1
	}
	return int(math.Ceil(windowSeconds/5)) + 1, 5
}

// Update advances the calculator by one display tick. elapsed and
// totalWritten are the engine's current elapsed-seconds and
// total-written counters; final is true only on the loop's last pass.
func (c *Calc) Update(elapsed float64, totalWritten uint64, final bool, sizeKnown bool, size uint64, transferred uint64) {
	bytesSinceLast := int64(totalWritten) - int64(c.prevTotalWritten)
	c.prevTotalWritten = totalWritten

	timeSinceLast := elapsed - c.prevElapsed
	var rate float64
	if timeSinceLast <= 0.01 {
		c.prevTrans += float64(bytesSinceLast)
		rate = c.prevRate
	} else {
		rate = (float64(bytesSinceLast) + c.prevTrans) / timeSinceLast
		c.prevTrans = 0
		c.prevElapsed = elapsed
		c.prevRate = rate

		if rate < c.rateMin {
			c.rateMin = rate
		}
		if rate > c.rateMax {
			c.rateMax = rate
		}
		c.rateSum += rate
		c.rateSumSq += rate * rate
		c.measurements++
	}

	c.updateHistory(elapsed, totalWritten)

	if final {
		denom := elapsed
		if denom < 1e-6 {
			denom = 1e-6
		}
		avg := float64(totalWritten-c.initialOffset) / denom
		rate = avg
		c.currentAvgRate = avg
	}

	if sizeKnown && size > 0 {
		pct := int(100 * float64(totalWritten) / float64(size))
		if pct < 0 {
			pct = 0
		}
		if pct > 100000 {
			pct = 100000
		}
		c.percentage = pct
	} else {
		c.percentage = (c.percentage + 2) % 200
	}

	c.lastTransferred = transferred
	c.lastSize = size
	c.lastSizeKnown = sizeKnown
	c.lastRate = rate
}

func (c *Calc) updateHistory(elapsed float64, totalWritten uint64) {
	if c.ringLen == 0 {
		c.ring[0] = historyEntry{elapsed: elapsed, total: totalWritten}
		c.ringHead = 0
		c.ringLen = 1
		c.currentAvgRate = c.prevRate
		return
	}
	last := c.at(c.ringLen - 1)
	if elapsed-last.elapsed >= c.historyInt {
		if c.ringLen < len(c.ring) {
			c.ring[c.index(c.ringLen)] = historyEntry{elapsed: elapsed, total: totalWritten}
			c.ringLen++
		} else {
			c.ringHead = (c.ringHead + 1) % len(c.ring)
			c.ring[c.index(c.ringLen-1)] = historyEntry{elapsed: elapsed, total: totalWritten}
		}
	}
	first := c.at(0)
	newLast := c.at(c.ringLen - 1)
	dt := newLast.elapsed - first.elapsed
	if dt > 0 {
		c.currentAvgRate = float64(newLast.total-first.total) / dt
	} else {
		c.currentAvgRate = c.prevRate
	}
}

func (c *Calc) index(i int) int {
	return (c.ringHead + i) % len(c.ring)
}

func (c *Calc) at(i int) historyEntry {
	return c.ring[c.index(i)]
}

// AverageRate returns the windowed mean computed over the history ring.
func (c *Calc) AverageRate() float64 { return c.currentAvgRate }

// Rate returns the instantaneous rate from the most recent Update call.
func (c *Calc) Rate() float64 { return c.lastRate }

// MaxRate returns the highest instantaneous rate observed across every
// Update call so far, or 0 before the first measurement - the
// denominator the rate gauge (%p and the bar components under
// --rate-gauge) divides
// the current rate by.
func (c *Calc) MaxRate() float64 {
	if c.measurements == 0 {
		return 0
	}
	return c.rateMax
}

// Percentage returns the current percentage counter, clamped to
// [0, 100000], or the numeric-mode 0..200 oscillator when size is unknown.
func (c *Calc) Percentage() int { return c.percentage }

// ETA computes (size - transferred) / average, clamped to [0, 360000000]
// seconds.
func (c *Calc) ETA(size, transferred uint64) float64 {
	if c.currentAvgRate <= 0 {
		return 360000000
	}
	remaining := float64(size) - float64(transferred)
	if remaining < 0 {
		remaining = 0
	}
	eta := remaining / c.currentAvgRate
	if eta < 0 {
		eta = 0
	}
	if eta > 360000000 {
		eta = 360000000
	}
	return eta
}

// Stats is the final rate min/avg/max/mdev summary.
type Stats struct {
	Min, Max, Avg, Mdev float64
	Measurements        int64
}

// FinalStats computes the --show-stats summary. ok is false when no
// measurement was ever taken.
func (c *Calc) FinalStats() (Stats, bool) {
	if c.measurements == 0 {
		return Stats{}, false
	}
	n := float64(c.measurements)
	avg := c.rateSum / n
	variance := c.rateSumSq/n - avg*avg
	if variance < 0 {
		variance = 0
	}
	return Stats{
		Min:          c.rateMin,
		Max:          c.rateMax,
		Avg:          avg,
		Mdev:         math.Sqrt(variance),
		Measurements: c.measurements,
	}, true
}
