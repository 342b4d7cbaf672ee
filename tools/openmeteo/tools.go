package openmeteo

import "github.com/KamdynS/weather-agents/tools"

// Function-tool names offered to tool-calling language models.
const (
	WeatherToolName    = "get_current_weather"
	AirQualityToolName = "get_current_air_quality"
)

// WeatherTool exposes a weather invoker as a function tool.
func WeatherTool(inv tools.Invoker) tools.Tool {
	return tools.NewInvokerTool(WeatherToolName,
		"Fetch current weather data for the given latitude and longitude.", inv)
}

// AirQualityTool exposes an air-quality invoker as a function tool.
func AirQualityTool(inv tools.Invoker) tools.Tool {
	return tools.NewInvokerTool(AirQualityToolName,
		"Fetch current air quality data for the given latitude and longitude.", inv)
}
