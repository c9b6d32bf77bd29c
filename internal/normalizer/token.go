package normalizer

import (
	"fmt"
	"strconv"
	"strings"
)

// clickToken is a parsed fb.<subdomainIndex>.<creationTime>.<clickId> value.
type clickToken struct {
	raw     string
	created int64 // unix seconds
	valid   bool
}

func (n *Normalizer) parseClickToken(raw string) clickToken {
	tok := clickToken{raw: raw}
	if raw == "" || !n.policy.FBC.MatchString(raw) {
		return tok
	}

	parts := strings.SplitN(raw, ".", 4)
	if len(parts) < 4 {
		return tok
	}

	created, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || created <= 0 {
		return tok
	}

	tok.created = toSeconds(created, n.policy.MillisecondThreshold)
	tok.valid = true
	return tok
}

// normalizeFBP keeps a well-formed browser id and synthesizes one otherwise.
func (n *Normalizer) normalizeFBP(raw string, present bool, eventTime int64, report *Report) string {
	if present && n.policy.FBP.MatchString(raw) {
		return raw
	}

	reason := "absent"
	if present {
		reason = "malformed"
	}
	report.add("fbp", "generated", reason)

	return fmt.Sprintf("fb.1.%d.%d", eventTime, n.randInt())
}

// normalizeFBC keeps a well-formed click id whose creation time is inside the
// trust window. Otherwise it rebuilds one from fbclid, or drops the field so
// an invalid token is never sent.
func (n *Normalizer) normalizeFBC(click clickToken, present bool, fbclid string, eventTime, now int64, report *Report) string {
	lo, hi := n.window(now)
	if present && click.valid && click.created >= lo && click.created <= hi {
		return click.raw
	}

	reason := "creation time outside trust window"
	if present && !click.valid {
		reason = "malformed"
	}

	if fbclid != "" {
		if present {
			report.add("fbc", "replaced", reason)
		} else {
			report.add("fbc", "generated", "derived from fbclid")
		}
		return fmt.Sprintf("fb.1.%d.%s", eventTime, fbclid)
	}

	if present {
		report.add("fbc", "dropped", reason)
	}
	return ""
}
