package helper

import (
	"strconv"
	"time"
)

// requestIdTime is a second-resolution timestamp followed by the nanosecond
// remainder, so ids sort by creation time.
func requestIdTime(now time.Time) string {
	return now.Format("20060102150405") + strconv.FormatInt(int64(now.Nanosecond()), 10)
}

// CalcElapsedTime returns the milliseconds since start. Sub-millisecond
// exchanges report 1 so a latency of 0 always means "not measured".
func CalcElapsedTime(start time.Time) int64 {
	elapsed := time.Since(start)
	if ms := elapsed.Milliseconds(); ms > 0 || elapsed <= 0 {
		return ms
	}
	return 1
}
