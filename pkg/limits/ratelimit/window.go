package ratelimit

import (
	"time"
)

// slidingWindow is a per-key sliding window counter.
//
// The window tracks request counts over a rolling time period using a
// fixed number of time buckets. Old buckets outside the window are pruned
// on every operation, which avoids the reset spike of a plain fixed
// window. Counts within a window are monotonically non-decreasing; they
// drop only as buckets age out.
//
// slidingWindow is not safe for concurrent use on its own; the owning
// store shard serializes access.
type slidingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
	lastSeen   time.Time
}

// bucket is a single time-stamped counter bucket.
type bucket struct {
	start time.Time
	count int64
}

// windowBuckets is the bucket count per window; a 1-minute window gets
// 1-second granularity.
const windowBuckets = 60

func newSlidingWindow(window time.Duration) *slidingWindow {
	bucketSize := window / windowBuckets
	if bucketSize < time.Second {
		bucketSize = time.Second
	}
	n := int(window / bucketSize)
	if n == 0 {
		n = 1
	}
	return &slidingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, n),
	}
}

// incr adds one request at the given time and returns the total count
// across the window, including the new request.
func (sw *slidingWindow) incr(now time.Time) int64 {
	sw.lastSeen = now
	sw.prune(now)

	b := sw.findOrCreate(now)
	b.count++

	var sum int64
	for i := range sw.buckets {
		if !sw.buckets[i].start.IsZero() {
			sum += sw.buckets[i].count
		}
	}
	return sum
}

// idleSince reports whether the window has seen no activity since the
// given cutoff.
func (sw *slidingWindow) idleSince(cutoff time.Time) bool {
	return sw.lastSeen.Before(cutoff)
}

func (sw *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	for i := range sw.buckets {
		if !sw.buckets[i].start.IsZero() && sw.buckets[i].start.Before(cutoff) {
			sw.buckets[i] = bucket{}
		}
	}
}

func (sw *slidingWindow) findOrCreate(now time.Time) *bucket {
	start := now.Truncate(sw.bucketSize)

	empty := -1
	oldest := 0
	for i := range sw.buckets {
		if sw.buckets[i].start.Equal(start) {
			return &sw.buckets[i]
		}
		if sw.buckets[i].start.IsZero() {
			if empty == -1 {
				empty = i
			}
			continue
		}
		if sw.buckets[i].start.Before(sw.buckets[oldest].start) {
			oldest = i
		}
	}

	target := empty
	if target == -1 {
		target = oldest
	}
	sw.buckets[target] = bucket{start: start}
	return &sw.buckets[target]
}
