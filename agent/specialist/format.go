package specialist

import (
	"fmt"
	"sort"

	"github.com/KamdynS/weather-agents/tools"
	"github.com/KamdynS/weather-agents/tools/openmeteo"
)

// Section headings.
const (
	WeatherHeading    = "Weather Summary:"
	AirQualityHeading = "Air Quality Summary:"
)

// Formatter turns a successful tool result into summary and suggestion
// bullets. Implementations must be deterministic.
type Formatter interface {
	Heading() string
	Format(loc tools.Location, res tools.Result) (summary, suggestions []string, err error)
}

// Weather thresholds. Wind is in km/h, temperatures in °C.
const (
	dangerousHeat = 40.0
	hotFeel       = 32.0
	mildFeel      = 20.0
	coolFeel      = 10.0
	extremeCold   = -10.0
	gustyWind     = 30.0
	galeWind      = 50.0
	humid         = 80.0
)

// WeatherFormatter formats openmeteo.CurrentWeather payloads.
type WeatherFormatter struct{}

func (WeatherFormatter) Heading() string { return WeatherHeading }

// Format implements Formatter.
func (WeatherFormatter) Format(loc tools.Location, res tools.Result) ([]string, []string, error) {
	w, ok := res.Payload().(openmeteo.CurrentWeather)
	if !ok {
		return nil, nil, fmt.Errorf("weather formatter: unexpected payload %T", res.Payload())
	}
	tempUnit := w.Unit("temperature_2m", "°C")
	windUnit := w.Unit("windspeed_10m", "km/h")

	summary := []string{
		fmt.Sprintf("%s: %s, %.1f%s (feels like %.1f%s).",
			placeName(loc), openmeteo.DescribeWeatherCode(w.WeatherCode),
			w.Temperature, tempUnit, w.ApparentTemperature, tempUnit),
		fmt.Sprintf("Humidity %.0f%% with a dew point of %.1f%s.", w.RelativeHumidity, w.DewPoint, tempUnit),
		fmt.Sprintf("Wind %.1f %s from the %s (%.0f°).",
			w.WindSpeed, windUnit, openmeteo.CompassDirection(w.WindDirection), w.WindDirection),
		fmt.Sprintf("Precipitation %.1f %s.", w.Precipitation, w.Unit("precipitation", "mm")),
	}
	if w.Time != "" {
		observed := "Observed at " + w.Time
		if w.Timezone != "" {
			observed += " (" + w.Timezone + ")"
		}
		summary = append(summary, observed+".")
	}
	return summary, weatherSuggestions(w), nil
}

func weatherSuggestions(w openmeteo.CurrentWeather) []string {
	var safety, advice []string
	feel := w.ApparentTemperature

	if openmeteo.IsThunderstorm(w.WeatherCode) {
		safety = append(safety, "Safety: thunderstorms are reported. Stay indoors and keep away from open ground, tall trees and water.")
	}
	if openmeteo.IsHeavy(w.WeatherCode) && !openmeteo.IsThunderstorm(w.WeatherCode) {
		safety = append(safety, "Safety: heavy precipitation. Avoid flooded roads and allow extra travel time.")
	}
	if feel >= dangerousHeat {
		safety = append(safety, fmt.Sprintf("Safety: dangerous heat, it feels like %.0f°. Avoid strenuous activity outdoors and drink water regularly.", feel))
	}
	if feel <= extremeCold {
		safety = append(safety, fmt.Sprintf("Safety: extreme cold, it feels like %.0f°. Cover exposed skin and limit time outside.", feel))
	}
	if w.WindSpeed >= galeWind {
		safety = append(safety, "Safety: strong winds. Watch for falling branches and avoid exposed areas.")
	}

	if openmeteo.IsWet(w.WeatherCode) {
		advice = append(advice, "Carry an umbrella or a rain jacket.")
	}
	if openmeteo.IsSnow(w.WeatherCode) {
		advice = append(advice, "Wear insulated, waterproof footwear and take care on slippery paths.")
	}
	switch {
	case feel >= hotFeel && feel < dangerousHeat:
		advice = append(advice, "It feels hot: wear light clothing, stay hydrated and seek shade.")
	case feel >= mildFeel && feel < hotFeel && !openmeteo.IsWet(w.WeatherCode):
		advice = append(advice, "Comfortable conditions for outdoor activities.")
	case feel < coolFeel && feel > extremeCold:
		advice = append(advice, "Dress in warm layers.")
	}
	if w.RelativeHumidity >= humid {
		advice = append(advice, "High humidity makes exertion feel harder, so pace yourself.")
	}
	if w.WindSpeed >= gustyWind && w.WindSpeed < galeWind {
		advice = append(advice, "Expect gusty conditions and secure loose items outdoors.")
	}
	if w.WeatherCode == 45 || w.WeatherCode == 48 {
		advice = append(advice, "Fog may reduce visibility; drive with low beams and extra distance.")
	}
	if len(safety) == 0 && len(advice) == 0 {
		advice = append(advice, "No special precautions needed.")
	}
	return append(safety, advice...)
}

// Rough 24-hour guideline concentrations in μg/m³ used to rank pollutants.
var guideline = map[string]float64{
	"pm2_5":            15,
	"pm10":             45,
	"ozone":            100,
	"nitrogen_dioxide": 25,
	"sulphur_dioxide":  40,
	"carbon_monoxide":  4000,
}

// AirQualityFormatter formats openmeteo.CurrentAirQuality payloads.
type AirQualityFormatter struct{}

func (AirQualityFormatter) Heading() string { return AirQualityHeading }

// Format implements Formatter.
func (AirQualityFormatter) Format(loc tools.Location, res tools.Result) ([]string, []string, error) {
	aq, ok := res.Payload().(openmeteo.CurrentAirQuality)
	if !ok {
		return nil, nil, fmt.Errorf("air quality formatter: unexpected payload %T", res.Payload())
	}

	index := placeName(loc) + ":"
	switch {
	case aq.EuropeanAQI != nil && aq.USAQI != nil:
		index += fmt.Sprintf(" European AQI %.0f (%s); US AQI %.0f (%s).",
			*aq.EuropeanAQI, openmeteo.EuropeanBand(*aq.EuropeanAQI).Label,
			*aq.USAQI, openmeteo.USBand(*aq.USAQI).Label)
	case aq.EuropeanAQI != nil:
		index += fmt.Sprintf(" European AQI %.0f (%s).", *aq.EuropeanAQI, openmeteo.EuropeanBand(*aq.EuropeanAQI).Label)
	case aq.USAQI != nil:
		index += fmt.Sprintf(" US AQI %.0f (%s).", *aq.USAQI, openmeteo.USBand(*aq.USAQI).Label)
	default:
		index += " no overall index reported."
	}
	summary := []string{index}

	pollutants := aq.Pollutants()
	dominant, rest := splitDominant(pollutants)
	if dominant != nil {
		summary = append(summary, fmt.Sprintf("Dominant pollutant: %s at %.1f %s.", dominant.Label, dominant.Value, dominant.Unit))
	}
	if len(rest) > 0 {
		line := "Other readings: "
		for i, p := range rest {
			if i > 0 {
				line += ", "
			}
			line += fmt.Sprintf("%s %.1f %s", p.Label, p.Value, p.Unit)
		}
		summary = append(summary, line+".")
	}
	if aq.Time != "" {
		observed := "Observed at " + aq.Time
		if aq.Timezone != "" {
			observed += " (" + aq.Timezone + ")"
		}
		summary = append(summary, observed+".")
	}
	return summary, airQualitySuggestions(aq, dominant), nil
}

// splitDominant returns the reading furthest above its guideline and the
// remaining readings in their original order.
func splitDominant(ps []openmeteo.Pollutant) (*openmeteo.Pollutant, []openmeteo.Pollutant) {
	if len(ps) == 0 {
		return nil, nil
	}
	ranked := make([]int, len(ps))
	for i := range ranked {
		ranked[i] = i
	}
	ratio := func(p openmeteo.Pollutant) float64 {
		if g, ok := guideline[p.Key]; ok && g > 0 {
			return p.Value / g
		}
		return 0
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ratio(ps[ranked[a]]) > ratio(ps[ranked[b]]) })
	top := ps[ranked[0]]
	rest := make([]openmeteo.Pollutant, 0, len(ps)-1)
	for i, p := range ps {
		if i != ranked[0] {
			rest = append(rest, p)
		}
	}
	return &top, rest
}

func airQualitySuggestions(aq openmeteo.CurrentAirQuality, dominant *openmeteo.Pollutant) []string {
	var out []string
	switch level := aq.Severity(); {
	case level < 0:
		out = append(out, "No overall index was reported; use the pollutant readings above as a guide.")
	case level == 0:
		out = append(out, "Air quality is good: a great time for outdoor activities.")
	case level == 1:
		out = append(out, "Air quality is acceptable; unusually sensitive people should watch for symptoms.")
	case level == 2:
		out = append(out,
			"Sensitive groups such as children, older adults and people with asthma should reduce prolonged outdoor exertion.",
			"Schedule runs and outdoor exercise for times with cleaner air.")
	case level == 3:
		out = append(out,
			"Safety: unhealthy air. Limit time outdoors and wear a well-fitted N95 or KN95 mask if you must be out.",
			"Keep windows closed and use an air purifier indoors if available.")
	default:
		out = append(out,
			"Safety: very unhealthy to hazardous air. Stay indoors with windows closed and avoid all outdoor exertion.",
			"Follow local health advisories.")
	}
	if dominant != nil && dominant.Key == "ozone" && aq.Severity() >= 1 {
		out = append(out, "Ozone peaks in the afternoon, so prefer morning activities.")
	}
	return out
}

func placeName(loc tools.Location) string {
	if loc.Name != "" {
		return loc.Name
	}
	return loc.String()
}
