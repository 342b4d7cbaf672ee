package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/KamdynS/weather-agents/tools"
)

// CurrentWeather is the decoded "current" block of a forecast response.
type CurrentWeather struct {
	Latitude            float64           `json:"latitude"`
	Longitude           float64           `json:"longitude"`
	Timezone            string            `json:"timezone"`
	Time                string            `json:"time"`
	Temperature         float64           `json:"temperature_2m"`
	RelativeHumidity    float64           `json:"relative_humidity_2m"`
	DewPoint            float64           `json:"dew_point_2m"`
	ApparentTemperature float64           `json:"apparent_temperature"`
	Precipitation       float64           `json:"precipitation"`
	WeatherCode         int               `json:"weathercode"`
	WindSpeed           float64           `json:"windspeed_10m"`
	WindDirection       float64           `json:"winddirection_10m"`
	Units               map[string]string `json:"units,omitempty"`
}

// Unit returns the unit reported for a field, or fallback.
func (w CurrentWeather) Unit(field, fallback string) string {
	if u, ok := w.Units[field]; ok && u != "" {
		return u
	}
	return fallback
}

type forecastResponse struct {
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Timezone     string            `json:"timezone"`
	CurrentUnits map[string]string `json:"current_units"`
	Current      *struct {
		Time                string   `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		RelativeHumidity    float64  `json:"relative_humidity_2m"`
		DewPoint            float64  `json:"dew_point_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Precipitation       float64  `json:"precipitation"`
		WeatherCode         float64  `json:"weathercode"`
		WindSpeed           float64  `json:"windspeed_10m"`
		WindDirection       float64  `json:"winddirection_10m"`
	} `json:"current"`
}

// WeatherInvoker fetches current weather for a location.
type WeatherInvoker struct{ client *Client }

// Invoke implements tools.Invoker.
func (w *WeatherInvoker) Invoke(ctx context.Context, loc tools.Location) tools.Result {
	body, failure := w.client.fetch(ctx, w.client.forecastURL, forecastPath, weatherFields, loc)
	if failure != nil {
		return *failure
	}
	cw, err := decodeWeather(body)
	if err != nil {
		return tools.Failure(tools.ReasonDecode, err.Error())
	}
	return tools.Success(cw, body)
}

func decodeWeather(body []byte) (CurrentWeather, error) {
	var fr forecastResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return CurrentWeather{}, fmt.Errorf("decode forecast: %w", err)
	}
	if fr.Current == nil || fr.Current.Temperature == nil {
		return CurrentWeather{}, fmt.Errorf("decode forecast: missing current temperature")
	}
	apparent := *fr.Current.Temperature
	if fr.Current.ApparentTemperature != nil {
		apparent = *fr.Current.ApparentTemperature
	}
	return CurrentWeather{
		Latitude:            fr.Latitude,
		Longitude:           fr.Longitude,
		Timezone:            fr.Timezone,
		Time:                fr.Current.Time,
		Temperature:         *fr.Current.Temperature,
		RelativeHumidity:    fr.Current.RelativeHumidity,
		DewPoint:            fr.Current.DewPoint,
		ApparentTemperature: apparent,
		Precipitation:       fr.Current.Precipitation,
		WeatherCode:         int(fr.Current.WeatherCode),
		WindSpeed:           fr.Current.WindSpeed,
		WindDirection:       fr.Current.WindDirection,
		Units:               fr.CurrentUnits,
	}, nil
}

// wmoDescriptions maps WMO weather interpretation codes to plain text.
var wmoDescriptions = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snowfall",
	73: "moderate snowfall",
	75: "heavy snowfall",
	77: "snow grains",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// DescribeWeatherCode returns the plain-language WMO description.
func DescribeWeatherCode(code int) string {
	if d, ok := wmoDescriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("unknown conditions (code %d)", code)
}

// IsThunderstorm reports WMO codes 95-99.
func IsThunderstorm(code int) bool { return code >= 95 && code <= 99 }

// IsWet reports drizzle, rain and shower codes.
func IsWet(code int) bool {
	return (code >= 51 && code <= 67) || (code >= 80 && code <= 82) || IsThunderstorm(code)
}

// IsSnow reports snowfall codes.
func IsSnow(code int) bool { return (code >= 71 && code <= 77) || code == 85 || code == 86 }

// IsHeavy reports codes whose intensity warrants a safety highlight.
func IsHeavy(code int) bool {
	switch code {
	case 65, 67, 75, 82, 86, 96, 99:
		return true
	}
	return false
}

var compassPoints = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// CompassDirection converts degrees to a 16-point compass label.
func CompassDirection(deg float64) string {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	idx := int(math.Floor(d/22.5+0.5)) % len(compassPoints)
	return compassPoints[idx]
}
