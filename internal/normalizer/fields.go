package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"capi-relay/internal/domain"
)

// payload is an undecoded JSON object. Values keep their raw form so that
// presence and type can be checked separately.
type payload map[string]json.RawMessage

var jsonNull = []byte("null")

func decodePayload(body []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBody, err)
	}
	if p == nil {
		p = payload{}
	}
	return p, nil
}

// lookup returns the first non-null value among keys.
func (p payload) lookup(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := p[k]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

// object returns the first value among keys that decodes as a JSON object.
func (p payload) object(keys ...string) payload {
	for _, k := range keys {
		raw, ok := p[k]
		if !ok || isNull(raw) {
			continue
		}
		var obj payload
		if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
			return obj
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// present reports whether a value counts as supplied: not null and not "".
func present(raw json.RawMessage, ok bool) bool {
	if !ok || isNull(raw) {
		return false
	}
	if s, isStr := asString(raw); isStr && s == "" {
		return false
	}
	return true
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// asInt accepts integral JSON numbers and strings of digits.
func asInt(raw json.RawMessage) (int64, bool) {
	if s, ok := asString(raw); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, false
	}
	if n, err := num.Int64(); err == nil {
		return n, true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// asFloat accepts finite JSON numbers and numeric strings.
func asFloat(raw json.RawMessage) (float64, bool) {
	var f float64
	if s, ok := asString(raw); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = v
	} else if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asArray(raw json.RawMessage) ([]any, bool) {
	var arr []any
	if err := json.Unmarshal(raw, &arr); err != nil || arr == nil {
		return nil, false
	}
	return arr, true
}
