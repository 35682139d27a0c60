package sharedlog

import (
	"time"
)

// housekeepLoop periodically expires timed-out deferred joins and
// retries stale pruning rounds (§4.2 "deferred...until parent arrives
// or a timeout", §4.5 "Retry on timeout").
func (sl *SharedLog) housekeepLoop() {
	defer sl.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sl.closeCh:
			return
		case <-ticker.C:
			if n := sl.log.ExpirePending(time.Now()); n > 0 {
				sl.lg.WithField("count", n).Debug("expired pending deferred joins")
			}
			sl.retryStalePrunes()
		}
	}
}
