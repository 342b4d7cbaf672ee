package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/tools"
	"github.com/KamdynS/weather-agents/tools/openmeteo/openmeteotest"
)

func newTestClient(srv *openmeteotest.Server) *Client {
	return New(WithForecastBaseURL(srv.URL), WithAirQualityBaseURL(srv.URL+"/"))
}

var jakarta = tools.Location{Latitude: -6.2, Longitude: 106.8, Name: "Jakarta"}

func TestWeatherInvokerSuccess(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	res := newTestClient(srv).Weather().Invoke(context.Background(), jakarta)
	require.True(t, res.OK(), res.Detail())
	cw, ok := res.Payload().(CurrentWeather)
	require.True(t, ok)
	assert.Equal(t, 31.4, cw.Temperature)
	assert.Equal(t, 36.9, cw.ApparentTemperature)
	assert.Equal(t, 61, cw.WeatherCode)
	assert.Equal(t, "Asia/Jakarta", cw.Timezone)
	assert.Equal(t, "km/h", cw.Unit("windspeed_10m", "?"))
	assert.Equal(t, 1, srv.WeatherCalls())

	q := srv.LastQuery()
	assert.Equal(t, "-6.2", q["latitude"])
	assert.Equal(t, "106.8", q["longitude"])
	assert.Equal(t, "auto", q["timezone"])
	assert.Equal(t, "temperature_2m,relative_humidity_2m,dew_point_2m,apparent_temperature,precipitation,weathercode,windspeed_10m,winddirection_10m", q["current"])
}

func TestAirQualityInvokerSuccess(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	res := newTestClient(srv).AirQuality().Invoke(context.Background(), jakarta)
	require.True(t, res.OK(), res.Detail())
	aq := res.Payload().(CurrentAirQuality)
	require.NotNil(t, aq.USAQI)
	assert.Equal(t, 128.0, *aq.USAQI)
	assert.Equal(t, 3, aq.Severity(), "us 128 is band 2, european 62 is band 3")
	assert.Len(t, aq.Pollutants(), 6)
	assert.Equal(t, "european_aqi,us_aqi,pm10,pm2_5,carbon_monoxide,nitrogen_dioxide,sulphur_dioxide,ozone", srv.LastQuery()["current"])
	assert.JSONEq(t, openmeteotest.AirQualityJSON, string(res.Raw()))
}

func TestInvalidLocationMakesNoRequest(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	c := newTestClient(srv)

	res := c.Weather().Invoke(context.Background(), tools.Location{Latitude: 91, Longitude: 0})
	assert.Equal(t, tools.ReasonInvalidLocation, res.Reason())
	res = c.AirQuality().Invoke(context.Background(), tools.Location{Latitude: 0, Longitude: -181})
	assert.Equal(t, tools.ReasonInvalidLocation, res.Reason())
	assert.Equal(t, 0, srv.TotalCalls())
}

func TestNon2xxIsNetworkFailureWithoutRetry(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	srv.FailWeather(http.StatusBadGateway)

	res := newTestClient(srv).Weather().Invoke(context.Background(), jakarta)
	assert.False(t, res.OK())
	assert.Equal(t, tools.ReasonNetwork, res.Reason())
	assert.Contains(t, res.Detail(), "502")
	assert.Contains(t, res.Detail(), "simulated failure")
	assert.Equal(t, 1, srv.WeatherCalls())
}

func TestTransportFailure(t *testing.T) {
	srv := openmeteotest.NewServer()
	url := srv.URL
	srv.Close()

	res := New(WithForecastBaseURL(url)).Weather().Invoke(context.Background(), jakarta)
	assert.Equal(t, tools.ReasonNetwork, res.Reason())
}

func TestTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	c := New(WithAirQualityBaseURL(slow.URL), WithTimeout(50*time.Millisecond))
	res := c.AirQuality().Invoke(context.Background(), jakarta)
	assert.Equal(t, tools.ReasonNetwork, res.Reason())
}

func TestTimeoutDoesNotModifyCallerClient(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	hc := &http.Client{Timeout: time.Minute}
	c := New(WithForecastBaseURL(srv.URL), WithHTTPClient(hc), WithTimeout(50*time.Millisecond))
	assert.Equal(t, time.Minute, hc.Timeout)
	assert.Equal(t, 50*time.Millisecond, c.httpClient.Timeout)

	_ = New(WithTimeout(time.Second), WithHTTPClient(http.DefaultClient))
	assert.Zero(t, http.DefaultClient.Timeout)

	res := c.Weather().Invoke(context.Background(), jakarta)
	assert.True(t, res.OK(), res.Detail())
}

func TestNilHTTPClientIsIgnored(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	c := New(WithForecastBaseURL(srv.URL), WithHTTPClient(nil))
	require.NotNil(t, c.httpClient)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	res := c.Weather().Invoke(context.Background(), jakarta)
	assert.True(t, res.OK(), res.Detail())
}

func TestDecodeFailure(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	srv.SetWeatherBody(`{"latitude":1}`)
	srv.SetAirQualityBody(`not json`)
	c := newTestClient(srv)

	assert.Equal(t, tools.ReasonDecode, c.Weather().Invoke(context.Background(), jakarta).Reason())
	assert.Equal(t, tools.ReasonDecode, c.AirQuality().Invoke(context.Background(), jakarta).Reason())
}

func TestRegisterBindsBothCapabilities(t *testing.T) {
	caps := tools.NewCapabilities()
	require.NoError(t, New().Register(caps))
	assert.NoError(t, caps.Require(tools.AllCapabilities...))
	assert.Error(t, New().Register(caps))
}

func TestFunctionTools(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	c := newTestClient(srv)

	out, err := WeatherTool(c.Weather()).Execute(context.Background(), `{"latitude":-6.2,"longitude":106.8}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"temperature_2m":31.4`)
	assert.Equal(t, AirQualityToolName, AirQualityTool(c.AirQuality()).Name())
}

func TestDescriptions(t *testing.T) {
	assert.Equal(t, "slight rain", DescribeWeatherCode(61))
	assert.Contains(t, DescribeWeatherCode(42), "unknown")
	assert.True(t, IsThunderstorm(95))
	assert.True(t, IsWet(81))
	assert.True(t, IsSnow(73))
	assert.False(t, IsWet(3))
	assert.Equal(t, "N", CompassDirection(0))
	assert.Equal(t, "N", CompassDirection(355))
	assert.Equal(t, "NW", CompassDirection(315))
	assert.Equal(t, "S", CompassDirection(-180))
	assert.Equal(t, "fair", EuropeanBand(35).Label)
	assert.Equal(t, "hazardous", USBand(420).Label)
}
