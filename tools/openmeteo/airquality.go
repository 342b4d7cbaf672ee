package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KamdynS/weather-agents/tools"
)

// CurrentAirQuality is the decoded "current" block of an air-quality
// response. Pollutants the station does not report are nil.
type CurrentAirQuality struct {
	Latitude        float64           `json:"latitude"`
	Longitude       float64           `json:"longitude"`
	Timezone        string            `json:"timezone"`
	Time            string            `json:"time"`
	EuropeanAQI     *float64          `json:"european_aqi"`
	USAQI           *float64          `json:"us_aqi"`
	PM10            *float64          `json:"pm10"`
	PM25            *float64          `json:"pm2_5"`
	CarbonMonoxide  *float64          `json:"carbon_monoxide"`
	NitrogenDioxide *float64          `json:"nitrogen_dioxide"`
	SulphurDioxide  *float64          `json:"sulphur_dioxide"`
	Ozone           *float64          `json:"ozone"`
	Units           map[string]string `json:"units,omitempty"`
}

type airQualityResponse struct {
	Latitude     float64            `json:"latitude"`
	Longitude    float64            `json:"longitude"`
	Timezone     string             `json:"timezone"`
	CurrentUnits map[string]string  `json:"current_units"`
	Current      *CurrentAirQuality `json:"current"`
}

// AirQualityInvoker fetches current air quality for a location.
type AirQualityInvoker struct{ client *Client }

// Invoke implements tools.Invoker.
func (a *AirQualityInvoker) Invoke(ctx context.Context, loc tools.Location) tools.Result {
	body, failure := a.client.fetch(ctx, a.client.airQualityURL, airQualityPath, airQualityFields, loc)
	if failure != nil {
		return *failure
	}
	aq, err := decodeAirQuality(body)
	if err != nil {
		return tools.Failure(tools.ReasonDecode, err.Error())
	}
	return tools.Success(aq, body)
}

func decodeAirQuality(body []byte) (CurrentAirQuality, error) {
	var ar airQualityResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return CurrentAirQuality{}, fmt.Errorf("decode air quality: %w", err)
	}
	if ar.Current == nil {
		return CurrentAirQuality{}, fmt.Errorf("decode air quality: missing current block")
	}
	aq := *ar.Current
	aq.Latitude = ar.Latitude
	aq.Longitude = ar.Longitude
	aq.Timezone = ar.Timezone
	aq.Units = ar.CurrentUnits
	if aq.EuropeanAQI == nil && aq.USAQI == nil && aq.PM25 == nil && aq.PM10 == nil {
		return CurrentAirQuality{}, fmt.Errorf("decode air quality: no index or particulate readings")
	}
	return aq, nil
}

// Pollutant is one named reading.
type Pollutant struct {
	Key   string
	Label string
	Value float64
	Unit  string
}

// Pollutants returns the reported pollutant readings in a fixed order.
func (a CurrentAirQuality) Pollutants() []Pollutant {
	all := []struct {
		key, label string
		v          *float64
	}{
		{"pm2_5", "PM2.5", a.PM25},
		{"pm10", "PM10", a.PM10},
		{"ozone", "ozone", a.Ozone},
		{"nitrogen_dioxide", "nitrogen dioxide", a.NitrogenDioxide},
		{"sulphur_dioxide", "sulphur dioxide", a.SulphurDioxide},
		{"carbon_monoxide", "carbon monoxide", a.CarbonMonoxide},
	}
	var out []Pollutant
	for _, p := range all {
		if p.v == nil {
			continue
		}
		unit := "μg/m³"
		if u, ok := a.Units[p.key]; ok && u != "" {
			unit = u
		}
		out = append(out, Pollutant{Key: p.key, Label: p.label, Value: *p.v, Unit: unit})
	}
	return out
}

// AQIBand is a qualitative index band. Level is 0 for the best band and
// increases with severity on both scales.
type AQIBand struct {
	Label string
	Level int
}

// EuropeanBand maps a European AQI value to its band.
func EuropeanBand(v float64) AQIBand {
	switch {
	case v <= 20:
		return AQIBand{"good", 0}
	case v <= 40:
		return AQIBand{"fair", 1}
	case v <= 60:
		return AQIBand{"moderate", 2}
	case v <= 80:
		return AQIBand{"poor", 3}
	case v <= 100:
		return AQIBand{"very poor", 4}
	default:
		return AQIBand{"extremely poor", 5}
	}
}

// USBand maps a US AQI value to its band.
func USBand(v float64) AQIBand {
	switch {
	case v <= 50:
		return AQIBand{"good", 0}
	case v <= 100:
		return AQIBand{"moderate", 1}
	case v <= 150:
		return AQIBand{"unhealthy for sensitive groups", 2}
	case v <= 200:
		return AQIBand{"unhealthy", 3}
	case v <= 300:
		return AQIBand{"very unhealthy", 4}
	default:
		return AQIBand{"hazardous", 5}
	}
}

// Severity returns the worse band level across the available indices, or
// -1 when neither index was reported.
func (a CurrentAirQuality) Severity() int {
	level := -1
	if a.EuropeanAQI != nil {
		level = EuropeanBand(*a.EuropeanAQI).Level
	}
	if a.USAQI != nil {
		if l := USBand(*a.USAQI).Level; l > level {
			level = l
		}
	}
	return level
}
