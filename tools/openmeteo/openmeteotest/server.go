// Package openmeteotest provides a fake Open-Meteo server for tests.
package openmeteotest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// Fixture bodies modelled on real API responses.
const (
	WeatherJSON = `{"latitude":-6.25,"longitude":106.75,"generationtime_ms":0.05,"utc_offset_seconds":25200,` +
		`"timezone":"Asia/Jakarta","timezone_abbreviation":"WIB","elevation":8.0,` +
		`"current_units":{"time":"iso8601","interval":"seconds","temperature_2m":"°C","relative_humidity_2m":"%",` +
		`"dew_point_2m":"°C","apparent_temperature":"°C","precipitation":"mm","weathercode":"wmo code",` +
		`"windspeed_10m":"km/h","winddirection_10m":"°"},` +
		`"current":{"time":"2024-05-01T14:00","interval":900,"temperature_2m":31.4,"relative_humidity_2m":70,` +
		`"dew_point_2m":25.3,"apparent_temperature":36.9,"precipitation":0.4,"weathercode":61,` +
		`"windspeed_10m":11.2,"winddirection_10m":315}}`

	AirQualityJSON = `{"latitude":-6.2,"longitude":106.8,"generationtime_ms":0.1,"utc_offset_seconds":25200,` +
		`"timezone":"Asia/Jakarta","timezone_abbreviation":"WIB","elevation":8.0,` +
		`"current_units":{"time":"iso8601","interval":"seconds","european_aqi":"EAQI","us_aqi":"USAQI",` +
		`"pm10":"μg/m³","pm2_5":"μg/m³","carbon_monoxide":"μg/m³","nitrogen_dioxide":"μg/m³",` +
		`"sulphur_dioxide":"μg/m³","ozone":"μg/m³"},` +
		`"current":{"time":"2024-05-01T14:00","interval":3600,"european_aqi":62,"us_aqi":128,"pm10":58.1,` +
		`"pm2_5":41.7,"carbon_monoxide":612.0,"nitrogen_dioxide":38.5,"sulphur_dioxide":21.4,"ozone":74.0}}`
)

// Server is an httptest server answering /v1/forecast and /v1/air-quality.
type Server struct {
	*httptest.Server

	weatherCalls    atomic.Int64
	airQualityCalls atomic.Int64

	mu               sync.Mutex
	weatherStatus    int
	airQualityStatus int
	weatherBody      string
	airQualityBody   string
	lastQuery        map[string]string
}

// NewServer starts a server returning the fixtures with status 200.
func NewServer() *Server {
	s := &Server{
		weatherStatus:    http.StatusOK,
		airQualityStatus: http.StatusOK,
		weatherBody:      WeatherJSON,
		airQualityBody:   AirQualityJSON,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		s.weatherCalls.Add(1)
		s.mu.Lock()
		status, body := s.weatherStatus, s.weatherBody
		s.recordQuery(r)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v1/air-quality", func(w http.ResponseWriter, r *http.Request) {
		s.airQualityCalls.Add(1)
		s.mu.Lock()
		status, body := s.airQualityStatus, s.airQualityBody
		s.recordQuery(r)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) recordQuery(r *http.Request) {
	s.lastQuery = make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			s.lastQuery[k] = v[0]
		}
	}
}

// FailWeather makes the forecast endpoint answer with status.
func (s *Server) FailWeather(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weatherStatus = status
	s.weatherBody = `{"error":true,"reason":"simulated failure"}`
}

// FailAirQuality makes the air-quality endpoint answer with status.
func (s *Server) FailAirQuality(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airQualityStatus = status
	s.airQualityBody = `{"error":true,"reason":"simulated failure"}`
}

// SetWeatherBody replaces the forecast body.
func (s *Server) SetWeatherBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weatherBody = body
}

// SetAirQualityBody replaces the air-quality body.
func (s *Server) SetAirQualityBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.airQualityBody = body
}

// WeatherCalls returns the number of forecast requests served.
func (s *Server) WeatherCalls() int { return int(s.weatherCalls.Load()) }

// AirQualityCalls returns the number of air-quality requests served.
func (s *Server) AirQualityCalls() int { return int(s.airQualityCalls.Load()) }

// TotalCalls returns all requests served.
func (s *Server) TotalCalls() int { return s.WeatherCalls() + s.AirQualityCalls() }

// LastQuery returns the query parameters of the most recent request.
func (s *Server) LastQuery() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.lastQuery))
	for k, v := range s.lastQuery {
		out[k] = v
	}
	return out
}
