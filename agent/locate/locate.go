// Package locate turns free text into coordinates. Deterministic locators
// handle explicit coordinates and well-known places; the LLM locator covers
// everything else.
package locate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/KamdynS/weather-agents/agent/intent"
	"github.com/KamdynS/weather-agents/tools"
)

// ErrNotFound is returned when text names no resolvable place.
var ErrNotFound = errors.New("locate: no location found")

// Locator resolves the place a question is about.
type Locator interface {
	Locate(ctx context.Context, text string) (tools.Location, error)
}

// Func adapts a function to Locator.
type Func func(ctx context.Context, text string) (tools.Location, error)

func (f Func) Locate(ctx context.Context, text string) (tools.Location, error) { return f(ctx, text) }

var coordinatePattern = regexp.MustCompile(`(-?\d{1,3}(?:\.\d+)?)\s*[,;]\s*(-?\d{1,3}(?:\.\d+)?)`)

// Coordinates parses an explicit "lat, lon" pair from the text.
type Coordinates struct{}

// Locate implements Locator.
func (Coordinates) Locate(_ context.Context, text string) (tools.Location, error) {
	m := coordinatePattern.FindStringSubmatch(text)
	if m == nil {
		return tools.Location{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return tools.Location{}, ErrNotFound
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return tools.Location{}, ErrNotFound
	}
	loc := tools.Location{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		return tools.Location{}, fmt.Errorf("locate: %w", err)
	}
	return loc, nil
}

// Place is a named location in a Gazetteer.
type Place struct {
	Name      string
	Latitude  float64
	Longitude float64
	Aliases   []string
}

// Gazetteer matches known place names as whole words, longest name first.
type Gazetteer struct {
	entries []gazetteerEntry
}

type gazetteerEntry struct {
	key   string
	place Place
}

// NewGazetteer builds a gazetteer from places.
func NewGazetteer(places ...Place) *Gazetteer {
	g := &Gazetteer{}
	for _, p := range places {
		for _, name := range append([]string{p.Name}, p.Aliases...) {
			key := strings.TrimSpace(intent.Normalize(name))
			if key != "" {
				g.entries = append(g.entries, gazetteerEntry{key: key, place: p})
			}
		}
	}
	sort.SliceStable(g.entries, func(i, j int) bool { return len(g.entries[i].key) > len(g.entries[j].key) })
	return g
}

// Locate implements Locator.
func (g *Gazetteer) Locate(_ context.Context, text string) (tools.Location, error) {
	normalized := intent.Normalize(text)
	for _, e := range g.entries {
		if strings.Contains(normalized, " "+e.key+" ") {
			return tools.Location{Latitude: e.place.Latitude, Longitude: e.place.Longitude, Name: e.place.Name}, nil
		}
	}
	return tools.Location{}, ErrNotFound
}

// Len returns the number of names (including aliases) indexed.
func (g *Gazetteer) Len() int { return len(g.entries) }

// DefaultPlaces is a small built-in set of major cities.
var DefaultPlaces = []Place{
	{Name: "Jakarta", Latitude: -6.2088, Longitude: 106.8456},
	{Name: "Bandung", Latitude: -6.9175, Longitude: 107.6191},
	{Name: "Surabaya", Latitude: -7.2575, Longitude: 112.7521},
	{Name: "Yogyakarta", Latitude: -7.7956, Longitude: 110.3695, Aliases: []string{"jogja"}},
	{Name: "Denpasar", Latitude: -8.6705, Longitude: 115.2126, Aliases: []string{"bali"}},
	{Name: "Singapore", Latitude: 1.3521, Longitude: 103.8198},
	{Name: "Kuala Lumpur", Latitude: 3.1390, Longitude: 101.6869},
	{Name: "Bangkok", Latitude: 13.7563, Longitude: 100.5018},
	{Name: "Manila", Latitude: 14.5995, Longitude: 120.9842},
	{Name: "Hanoi", Latitude: 21.0278, Longitude: 105.8342},
	{Name: "Tokyo", Latitude: 35.6762, Longitude: 139.6503},
	{Name: "Seoul", Latitude: 37.5665, Longitude: 126.9780},
	{Name: "Beijing", Latitude: 39.9042, Longitude: 116.4074},
	{Name: "Shanghai", Latitude: 31.2304, Longitude: 121.4737},
	{Name: "Hong Kong", Latitude: 22.3193, Longitude: 114.1694},
	{Name: "New Delhi", Latitude: 28.6139, Longitude: 77.2090, Aliases: []string{"delhi"}},
	{Name: "Mumbai", Latitude: 19.0760, Longitude: 72.8777},
	{Name: "Dubai", Latitude: 25.2048, Longitude: 55.2708},
	{Name: "Sydney", Latitude: -33.8688, Longitude: 151.2093},
	{Name: "Melbourne", Latitude: -37.8136, Longitude: 144.9631},
	{Name: "London", Latitude: 51.5074, Longitude: -0.1278},
	{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522},
	{Name: "Berlin", Latitude: 52.5200, Longitude: 13.4050},
	{Name: "Amsterdam", Latitude: 52.3676, Longitude: 4.9041},
	{Name: "Madrid", Latitude: 40.4168, Longitude: -3.7038},
	{Name: "Rome", Latitude: 41.9028, Longitude: 12.4964},
	{Name: "Cairo", Latitude: 30.0444, Longitude: 31.2357},
	{Name: "Nairobi", Latitude: -1.2921, Longitude: 36.8219},
	{Name: "New York", Latitude: 40.7128, Longitude: -74.0060, Aliases: []string{"nyc"}},
	{Name: "San Francisco", Latitude: 37.7749, Longitude: -122.4194},
	{Name: "Los Angeles", Latitude: 34.0522, Longitude: -118.2437},
	{Name: "Chicago", Latitude: 41.8781, Longitude: -87.6298},
	{Name: "Toronto", Latitude: 43.6532, Longitude: -79.3832},
	{Name: "Mexico City", Latitude: 19.4326, Longitude: -99.1332, Aliases: []string{"ciudad de méxico"}},
	{Name: "Sao Paulo", Latitude: -23.5505, Longitude: -46.6333, Aliases: []string{"são paulo"}},
	{Name: "Buenos Aires", Latitude: -34.6037, Longitude: -58.3816},
}

// Default returns a gazetteer over DefaultPlaces.
func Default() *Gazetteer { return NewGazetteer(DefaultPlaces...) }

// Chain tries locators in order and returns the first resolved location.
// ErrNotFound from a member moves on to the next; other errors are kept and
// returned only if nothing resolves.
type Chain []Locator

// Locate implements Locator.
func (c Chain) Locate(ctx context.Context, text string) (tools.Location, error) {
	var lastErr error
	for _, l := range c {
		if l == nil {
			continue
		}
		loc, err := l.Locate(ctx, text)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return tools.Location{}, lastErr
	}
	return tools.Location{}, ErrNotFound
}
