// Package normalizer turns an untrusted tracking payload into a server event
// for the Conversions API. It fails only when required fields are absent;
// malformed optional fields are repaired or dropped and recorded in a Report.
package normalizer

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"capi-relay/internal/config"
	"capi-relay/internal/domain"
)

// Policy is the compiled form of config.Policy.
type Policy struct {
	Lookback             time.Duration
	FutureSkew           time.Duration
	MillisecondThreshold int64
	FBP                  *regexp.Regexp
	FBC                  *regexp.Regexp
	CommerceDefaults     map[string]config.CommerceDefault
}

// PolicyFromConfig compiles a validated config.Policy.
func PolicyFromConfig(p *config.Policy) (Policy, error) {
	if err := config.ValidatePolicy(p); err != nil {
		return Policy{}, err
	}

	fbp, err := regexp.Compile(p.Tokens.FBPPattern)
	if err != nil {
		return Policy{}, fmt.Errorf("compile fbp pattern: %w", err)
	}
	fbc, err := regexp.Compile(p.Tokens.FBCPattern)
	if err != nil {
		return Policy{}, fmt.Errorf("compile fbc pattern: %w", err)
	}

	return Policy{
		Lookback:             p.TrustWindow.Lookback.ToDuration(),
		FutureSkew:           p.TrustWindow.FutureSkew.ToDuration(),
		MillisecondThreshold: p.MillisecondThreshold,
		FBP:                  fbp,
		FBC:                  fbc,
		CommerceDefaults:     p.CommerceDefaults,
	}, nil
}

// DefaultPolicy compiles config.DefaultPolicy.
func DefaultPolicy() Policy {
	p, err := PolicyFromConfig(config.DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("default policy is invalid: %v", err))
	}
	return p
}

// Repair records one correction applied to an event.
type Repair struct {
	Field  string
	Action string // "replaced", "generated", "dropped", "defaulted", "normalized"
	Reason string
}

// Report lists the corrections applied while normalizing one event.
type Report struct {
	Repairs []Repair
}

func (r *Report) add(field, action, reason string) {
	r.Repairs = append(r.Repairs, Repair{Field: field, Action: action, Reason: reason})
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithRandom overrides the source of the random fbp component.
func WithRandom(randInt func() int64) Option {
	return func(n *Normalizer) { n.randInt = randInt }
}

// WithIDGenerator overrides the UUID source used for fallback event ids.
func WithIDGenerator(newID func() string) Option {
	return func(n *Normalizer) { n.newID = newID }
}

// WithLogger sets the logger that receives repair warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = logger }
}

// Normalizer validates and repairs incoming events. It holds no per-request
// state and is safe for concurrent use.
type Normalizer struct {
	policy  Policy
	now     func() time.Time
	randInt func() int64
	newID   func() string
	logger  *slog.Logger
}

// New creates a Normalizer.
func New(policy Policy, opts ...Option) *Normalizer {
	n := &Normalizer{
		policy:  policy,
		now:     time.Now,
		randInt: rand.Int64,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type requiredField struct {
	name string
	keys []string
}

// Required fields in reporting order, each with the aliases used by the
// tracking snippets in the wild.
var requiredFields = []requiredField{
	{name: "eventName", keys: []string{"eventName", "event_name"}},
	{name: "eventSourceUrl", keys: []string{"eventSourceUrl", "event_source_url", "pageUrl"}},
	{name: "eventId", keys: []string{"eventId", "event_id"}},
	{name: "eventTime", keys: []string{"eventTime", "event_time"}},
}

// Normalize builds a NormalizedEvent from a raw JSON body.
// It returns domain.ErrInvalidBody when the body is not a JSON object and a
// *domain.MissingFieldsError when required fields are absent.
func (n *Normalizer) Normalize(body []byte, meta domain.RequestMeta) (*domain.NormalizedEvent, *Report, error) {
	p, err := decodePayload(body)
	if err != nil {
		return nil, nil, err
	}

	if missing := checkRequired(p); len(missing) > 0 {
		return nil, nil, &domain.MissingFieldsError{Fields: missing}
	}

	report := &Report{}
	now := n.now().Unix()

	eventName := n.eventName(p, report)

	userData := p.object("userData", "user_data")
	fbpRaw, fbpPresent := tokenValue(userData, p, "fbp")
	fbcRaw, fbcPresent := tokenValue(userData, p, "fbc")
	fbclid, _ := tokenValue(userData, p, "fbclid")
	fbclid = strings.TrimSpace(fbclid)

	click := n.parseClickToken(fbcRaw)
	eventTime := n.resolveEventTime(p, click, now, report)

	event := &domain.NormalizedEvent{
		EventName:      eventName,
		EventTime:      eventTime,
		ActionSource:   domain.ActionSourceWebsite,
		EventSourceURL: n.eventSourceURL(p, report),
		EventID:        n.eventID(p, eventName, report),
		UserData: domain.UserData{
			ClientIPAddress: meta.ClientIP,
			ClientUserAgent: meta.UserAgent,
			FBP:             n.normalizeFBP(fbpRaw, fbpPresent, eventTime, report),
			FBC:             n.normalizeFBC(click, fbcPresent, fbclid, eventTime, now, report),
		},
		CustomData: n.customData(p, eventName, report),
	}

	for _, r := range report.Repairs {
		n.logger.Warn("event field repaired",
			"event_id", event.EventID,
			"event_name", event.EventName,
			"field", r.Field,
			"action", r.Action,
			"reason", r.Reason,
			"origin", meta.Origin,
			"client_ip", meta.ClientIP)
	}

	return event, report, nil
}

func checkRequired(p payload) []string {
	var missing []string
	for _, f := range requiredFields {
		raw, ok := p.lookup(f.keys...)
		if !present(raw, ok) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func (n *Normalizer) eventName(p payload, report *Report) string {
	raw, _ := p.lookup("eventName", "event_name")
	if s, ok := asString(raw); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	report.add("eventName", "replaced", "not a string")
	return domain.DefaultEventName
}

func (n *Normalizer) eventSourceURL(p payload, report *Report) string {
	raw, _ := p.lookup("eventSourceUrl", "event_source_url", "pageUrl")
	if s, ok := asString(raw); ok {
		return s
	}
	report.add("eventSourceUrl", "replaced", "not a string")
	return ""
}

// eventID keeps a client string id so the upstream can deduplicate against
// the browser pixel; anything else gets "<eventName>-<uuid>".
func (n *Normalizer) eventID(p payload, eventName string, report *Report) string {
	raw, _ := p.lookup("eventId", "event_id")
	if s, ok := asString(raw); ok && s != "" {
		return s
	}
	report.add("eventId", "generated", "not a string")
	return eventName + "-" + n.newID()
}

// tokenValue reads key from the userData object, falling back to the top
// level of the payload when userData has no usable string. The second result
// reports whether any source supplied the key, usable or not.
func tokenValue(userData, top payload, key string) (string, bool) {
	supplied := false
	for _, src := range []payload{userData, top} {
		if src == nil {
			continue
		}
		raw, ok := src.lookup(key)
		if !ok {
			continue
		}
		supplied = true
		if s, isStr := asString(raw); isStr && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", supplied
}
