package normalizer

import (
	"encoding/json"
	"regexp"
	"strings"

	"capi-relay/internal/domain"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// customData copies the recognized commerce fields, type-checked. Anything
// unrecognized is ignored; mistyped recognized fields are dropped. Returns
// nil when nothing survives.
func (n *Normalizer) customData(p payload, eventName string, report *Report) domain.CustomData {
	src := p.object("customData", "custom_data")
	out := domain.CustomData{}

	// value and currency may arrive inside customData or at the top level.
	if raw, ok := firstOf(src, p, "value"); ok {
		if v, valid := asFloat(raw); valid {
			out["value"] = v
		} else {
			report.add("value", "dropped", "not a number")
		}
	}

	if raw, ok := firstOf(src, p, "currency"); ok {
		s, isStr := asString(raw)
		code := strings.ToUpper(strings.TrimSpace(s))
		if isStr && currencyCode.MatchString(code) {
			out["currency"] = code
			if code != s {
				report.add("currency", "normalized", "rewritten as "+code)
			}
		} else {
			report.add("currency", "dropped", "not a 3-letter currency code")
		}
	}

	if src != nil {
		if raw, ok := src.lookup("content_ids", "contentIds"); ok {
			if ids, valid := asArray(raw); valid {
				out["content_ids"] = ids
			} else {
				report.add("content_ids", "dropped", "not an array")
			}
		}
		copyString(src, out, "content_type", report, "content_type", "contentType")
		copyString(src, out, "content_category", report, "content_category", "contentCategory")
	}

	if raw, ok := firstOf(src, p, "buttonName", "button_name"); ok {
		if s, isStr := asString(raw); isStr && s != "" {
			out["button_name"] = s
		}
	}

	n.applyCommerceDefaults(eventName, out, report)

	if len(out) == 0 {
		return nil
	}
	return out
}

// applyCommerceDefaults fills value and currency for events that have a
// configured default.
func (n *Normalizer) applyCommerceDefaults(eventName string, out domain.CustomData, report *Report) {
	def, ok := n.policy.CommerceDefaults[eventName]
	if !ok {
		return
	}
	if _, has := out["value"]; !has && def.Value != nil {
		out["value"] = *def.Value
		report.add("value", "defaulted", "missing or invalid for "+eventName)
	}
	if _, has := out["currency"]; !has && def.Currency != "" {
		out["currency"] = def.Currency
		report.add("currency", "defaulted", "missing or invalid for "+eventName)
	}
}

// firstOf looks keys up in src, then in the top-level payload.
func firstOf(src, top payload, keys ...string) (json.RawMessage, bool) {
	if src != nil {
		if raw, ok := src.lookup(keys...); ok {
			return raw, true
		}
	}
	return top.lookup(keys...)
}

func copyString(src payload, out domain.CustomData, field string, report *Report, keys ...string) {
	raw, ok := src.lookup(keys...)
	if !ok {
		return
	}
	if s, isStr := asString(raw); isStr {
		out[field] = s
		return
	}
	report.add(field, "dropped", "not a string")
}
