package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	obs "github.com/KamdynS/weather-agents/observability"
)

// Capability tags the kind of data an invoker provides.
type Capability string

const (
	CapabilityWeather    Capability = "weather"
	CapabilityAirQuality Capability = "air_quality"
)

// AllCapabilities lists the known capabilities in their canonical order.
var AllCapabilities = []Capability{CapabilityWeather, CapabilityAirQuality}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, k := range AllCapabilities {
		if c == k {
			return true
		}
	}
	return false
}

// Title returns a display name such as "Weather" or "Air Quality".
func (c Capability) Title() string {
	switch c {
	case CapabilityWeather:
		return "Weather"
	case CapabilityAirQuality:
		return "Air Quality"
	default:
		return string(c)
	}
}

// ParseCapability accepts "weather", "air_quality", "air-quality" and "airquality".
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weather":
		return CapabilityWeather, nil
	case "air_quality", "air-quality", "airquality", "aqi":
		return CapabilityAirQuality, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
}

// ErrUnknownCapability is returned for capabilities outside AllCapabilities
// or not registered in a Capabilities registry.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrInvalidLocation is returned by Location.Validate.
var ErrInvalidLocation = errors.New("invalid location")

// Location is a geographic coordinate pair with an optional display name.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
}

// Validate checks latitude in [-90, 90] and longitude in [-180, 180].
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidLocation, l.Latitude)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidLocation, l.Longitude)
	}
	return nil
}

// String renders "Name (lat, lon)" or just the coordinates.
func (l Location) String() string {
	coords := fmt.Sprintf("%.4f, %.4f", l.Latitude, l.Longitude)
	if l.Name != "" {
		return l.Name + " (" + coords + ")"
	}
	return coords
}

// FailureReason classifies a failed invocation.
type FailureReason string

const (
	ReasonNetwork         FailureReason = "network_error"
	ReasonInvalidLocation FailureReason = "invalid_location"
	ReasonDecode          FailureReason = "decode_error"
	ReasonUnavailable     FailureReason = "unavailable"
)

// OutcomeSuccess is the metrics outcome label for successful invocations.
const OutcomeSuccess = "success"

// Result is the outcome of one invocation: either a success carrying a
// decoded payload or a failure carrying a reason. It is immutable.
type Result struct {
	ok      bool
	payload interface{}
	raw     []byte
	reason  FailureReason
	detail  string
}

// Success builds a successful result. raw is the undecoded response body.
func Success(payload interface{}, raw []byte) Result {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Result{ok: true, payload: payload, raw: cp}
}

// Failure builds a failed result.
func Failure(reason FailureReason, detail string) Result {
	return Result{reason: reason, detail: detail}
}

func (r Result) OK() bool              { return r.ok }
func (r Result) Payload() interface{}  { return r.payload }
func (r Result) Reason() FailureReason { return r.reason }
func (r Result) Detail() string        { return r.detail }

// Raw returns a copy of the response body of a successful result.
func (r Result) Raw() json.RawMessage {
	cp := make([]byte, len(r.raw))
	copy(cp, r.raw)
	return cp
}

// Outcome returns "success" or the failure reason.
func (r Result) Outcome() string {
	if r.ok {
		return OutcomeSuccess
	}
	return string(r.reason)
}

// Invoker fetches data for one capability. Implementations never return Go
// errors; every failure is a Failure result.
type Invoker interface {
	Invoke(ctx context.Context, loc Location) Result
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, loc Location) Result

func (f InvokerFunc) Invoke(ctx context.Context, loc Location) Result { return f(ctx, loc) }

// Capabilities is the static capability registry: each capability maps to
// exactly one invoker, registered at startup.
type Capabilities struct {
	mu       sync.RWMutex
	invokers map[Capability]Invoker
	order    []Capability
}

// NewCapabilities creates an empty registry.
func NewCapabilities() *Capabilities {
	return &Capabilities{invokers: make(map[Capability]Invoker)}
}

// Register binds an invoker to a capability.
func (c *Capabilities) Register(capability Capability, inv Invoker) error {
	if !capability.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	if inv == nil {
		return fmt.Errorf("nil invoker for %s", capability)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.invokers[capability]; exists {
		return fmt.Errorf("capability %s already registered", capability)
	}
	c.invokers[capability] = inv
	c.order = append(c.order, capability)
	return nil
}

// Lookup returns the invoker bound to a capability.
func (c *Capabilities) Lookup(capability Capability) (Invoker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inv, ok := c.invokers[capability]
	return inv, ok
}

// List returns registered capabilities in registration order.
func (c *Capabilities) List() []Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Capability, len(c.order))
	copy(out, c.order)
	return out
}

// Require fails with ErrUnknownCapability if any capability is unregistered.
func (c *Capabilities) Require(caps ...Capability) error {
	for _, capability := range caps {
		if _, ok := c.Lookup(capability); !ok {
			return fmt.Errorf("%w: %s is not registered", ErrUnknownCapability, capability)
		}
	}
	return nil
}

// Invoke calls the invoker bound to capability once, recording a span and
// tool-call metrics. Unregistered capabilities yield Failure(unavailable).
func (c *Capabilities) Invoke(ctx context.Context, capability Capability, loc Location) Result {
	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "tool.invoke")
	defer span.End()
	span.SetAttribute(obs.AttrCapability, string(capability))
	span.SetAttribute("location.latitude", loc.Latitude)
	span.SetAttribute("location.longitude", loc.Longitude)

	var res Result
	if inv, ok := c.Lookup(capability); ok {
		res = inv.Invoke(ctx, loc)
	} else {
		res = Failure(ReasonUnavailable, fmt.Sprintf("no invoker registered for %s", capability))
	}

	obs.MetricsImpl.RecordToolCall(string(capability), res.Outcome(), time.Since(start))
	span.SetAttribute(obs.AttrToolOutcome, res.Outcome())
	if res.OK() {
		span.SetStatus(obs.StatusCodeOk, "")
	} else {
		span.SetStatus(obs.StatusCodeError, res.Detail())
	}
	return res
}

// Bound returns an Invoker that routes through this registry for one
// capability, so callers get instrumentation without holding the registry.
func (c *Capabilities) Bound(capability Capability) Invoker {
	return InvokerFunc(func(ctx context.Context, loc Location) Result {
		return c.Invoke(ctx, capability, loc)
	})
}
