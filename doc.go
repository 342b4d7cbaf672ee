// Package weather provides top-level documentation for the weather-agents
// module: a multi-agent router that answers current weather and air quality
// questions. The module is organized as subpackages (e.g. `tools`, `agent`,
// `llm`, `memory`, `chat`, `server`, and `tui`); `cmd/weatherctl` is the CLI.
//
// Importers typically depend on the subpackages directly, for example:
//
//	import (
//	  "github.com/KamdynS/weather-agents/agent/router"
//	  "github.com/KamdynS/weather-agents/agent/specialist"
//	  "github.com/KamdynS/weather-agents/tools/openmeteo"
//	)
//
// The `app` package wires a complete runtime from a config.Config and is the
// easiest entry point for embedding.
package weather
