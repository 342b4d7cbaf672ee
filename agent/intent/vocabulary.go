// Package intent matches user text against small topic vocabularies. The
// guardrail uses it for scope and the router for specialist selection.
package intent

import (
	"strings"
	"unicode"

	"github.com/KamdynS/weather-agents/tools"
)

// Vocabulary is a set of lowercase terms. Multi-word terms match as whole
// phrases; single words match whole tokens only.
type Vocabulary struct {
	name  string
	terms []string
}

// NewVocabulary builds a vocabulary. Terms are lowercased and trimmed.
func NewVocabulary(name string, terms ...string) Vocabulary {
	v := Vocabulary{name: name}
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			v.terms = append(v.terms, t)
		}
	}
	return v
}

// Name identifies the vocabulary in rationales and logs.
func (v Vocabulary) Name() string { return v.name }

// Terms returns a copy of the vocabulary terms.
func (v Vocabulary) Terms() []string { return append([]string(nil), v.terms...) }

// With returns a new vocabulary extended with extra terms.
func (v Vocabulary) With(extra ...string) Vocabulary {
	return NewVocabulary(v.name, append(v.Terms(), extra...)...)
}

// Match returns the first term found in text.
func (v Vocabulary) Match(text string) (string, bool) {
	return v.match(Normalize(text))
}

func (v Vocabulary) match(normalized string) (string, bool) {
	for _, t := range v.terms {
		if strings.Contains(normalized, " "+t+" ") {
			return t, true
		}
	}
	return "", false
}

// Normalize lowercases text and reduces it to space-separated tokens, padded
// with a leading and trailing space. Dots inside tokens survive so "pm2.5"
// stays one token.
func Normalize(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	b.WriteByte(' ')

	fields := strings.Fields(b.String())
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".")
	}
	return " " + strings.Join(fields, " ") + " "
}

// Built-in vocabularies.
var (
	Weather = NewVocabulary("weather",
		"weather", "forecast", "temperature", "temp", "degrees", "celsius", "fahrenheit",
		"hot", "cold", "warm", "chilly", "freezing", "heat", "heatwave",
		"rain", "raining", "rainy", "drizzle", "shower", "showers", "umbrella", "precipitation",
		"snow", "snowing", "sleet", "hail", "storm", "stormy", "thunder", "thunderstorm", "lightning",
		"wind", "windy", "breeze", "gust", "gusts", "humid", "humidity", "dew point",
		"sunny", "sun", "cloudy", "clouds", "overcast", "fog", "foggy", "jacket",
	)

	AirQuality = NewVocabulary("air_quality",
		"air quality", "how is the air", "how s the air", "air like", "air bad", "air safe",
		"air clean", "air dirty", "clean air", "dirty air", "fresh air", "bad air", "aqi", "pollution", "polluted", "pollutant", "pollutants", "smog",
		"haze", "hazy", "smoke", "pm2.5", "pm 2.5", "pm25", "pm10", "particulate", "particulates",
		"ozone", "no2", "so2", "nitrogen dioxide", "sulphur dioxide", "sulfur dioxide",
		"carbon monoxide", "mask", "breathe", "breathing", "asthma", "allergens",
	)

	Greeting = NewVocabulary("greeting",
		"hello", "hi", "hey", "hiya", "howdy", "greetings", "good morning", "good afternoon",
		"good evening", "good day", "thanks", "thank you", "how are you",
	)
)

// ForCapability returns the selection vocabulary of a capability.
func ForCapability(c tools.Capability) (Vocabulary, bool) {
	switch c {
	case tools.CapabilityWeather:
		return Weather, true
	case tools.CapabilityAirQuality:
		return AirQuality, true
	}
	return Vocabulary{}, false
}

// Topic is the result of matching text against several vocabularies.
type Topic struct {
	Vocabulary string
	Term       string
}

// Detect matches text against each vocabulary in order and returns every hit.
func Detect(text string, vocabularies ...Vocabulary) []Topic {
	normalized := Normalize(text)
	var out []Topic
	for _, v := range vocabularies {
		if term, ok := v.match(normalized); ok {
			out = append(out, Topic{Vocabulary: v.name, Term: term})
		}
	}
	return out
}
