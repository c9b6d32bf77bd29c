package normalizer

import "fmt"

// window returns the inclusive range of unix seconds accepted around now.
func (n *Normalizer) window(now int64) (lo, hi int64) {
	return now - int64(n.policy.Lookback.Seconds()), now + int64(n.policy.FutureSkew.Seconds())
}

// toSeconds converts a millisecond timestamp to seconds. Values at or below
// threshold are already seconds.
func toSeconds(ts, threshold int64) int64 {
	if ts > threshold {
		return ts / 1000
	}
	return ts
}

// resolveEventTime picks the event time: the client value when it is an
// integer inside the trust window, else now. A valid click time that is later
// than that wins, since a stale client clock would otherwise understate
// recency. It never fails.
func (n *Normalizer) resolveEventTime(p payload, click clickToken, now int64, report *Report) int64 {
	lo, hi := n.window(now)
	eventTime := now

	raw, _ := p.lookup("eventTime", "event_time")
	switch ts, ok := asInt(raw); {
	case !ok:
		report.add("eventTime", "replaced", "not an integer")
	case ts < lo || ts > hi:
		report.add("eventTime", "replaced", fmt.Sprintf("%d outside trust window [%d, %d]", ts, lo, hi))
	default:
		eventTime = ts
	}

	if click.valid && click.created >= lo && click.created <= hi && click.created > eventTime {
		report.add("eventTime", "replaced", fmt.Sprintf("click identifier time %d is later than %d", click.created, eventTime))
		eventTime = click.created
	}

	return eventTime
}
