package timer

import (
	"sync/atomic"
	"time"
)

// Time is the unix time in milliseconds, refreshed every Resolution. It is used where
// reading the clock on every operation would be wasteful, e.g. for tracking connections
// activity.
var Time = new(atomic.Int64)

// Resolution is how often Time is refreshed. Idle timeouts are measured in seconds, so
// half a second is precise enough.
const Resolution = 500 * time.Millisecond

func Now() time.Time {
	return time.UnixMilli(Time.Load())
}

// Since returns the time elapsed from the moment, recorded earlier from Time.
func Since(millis int64) time.Duration {
	return time.Duration(Time.Load()-millis) * time.Millisecond
}

func init() {
	// the goroutine may start later than the first reader comes
	Time.Store(time.Now().UnixMilli())

	go func() {
		for {
			time.Sleep(Resolution)
			Time.Store(time.Now().UnixMilli())
		}
	}()
}
