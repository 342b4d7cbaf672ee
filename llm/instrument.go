package llm

import (
	"context"
	"time"

	obs "github.com/KamdynS/weather-agents/observability"
)

// InstrumentedChat wraps one provider call in an "llm.chat" span and records
// latency, token usage and errors. Latency and Timestamp are set on the
// returned response.
func InstrumentedChat(ctx context.Context, provider Provider, call func(ctx context.Context) (*Response, error)) (*Response, error) {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "llm.chat")
	defer span.End()
	span.SetAttribute(obs.AttrProvider, string(provider))

	labels := map[string]string{"provider": string(provider)}
	start := time.Now()
	resp, err := call(ctx)
	obs.MetricsImpl.RecordLatency(time.Since(start), labels)
	if err != nil {
		errType := string(ErrorTypeUnknown)
		if e, ok := AsLLMError(err); ok {
			errType = string(e.Type)
		}
		labels["type"] = errType
		obs.MetricsImpl.RecordError("llm_error", labels)
		span.SetStatus(obs.StatusCodeError, err.Error())
		return nil, err
	}

	resp.Latency = time.Since(start)
	resp.Timestamp = start
	span.SetAttribute(obs.AttrModel, resp.Model)
	span.SetAttribute(obs.AttrFinishReason, resp.FinishReason)
	if resp.Usage != nil {
		span.SetAttribute(obs.AttrTokensInput, resp.Usage.InputTokens)
		span.SetAttribute(obs.AttrTokensOutput, resp.Usage.OutputTokens)
		obs.MetricsImpl.IncrementTokensUsed(resp.Usage.InputTokens, map[string]string{"direction": "input", "model": resp.Model})
		obs.MetricsImpl.IncrementTokensUsed(resp.Usage.OutputTokens, map[string]string{"direction": "output", "model": resp.Model})
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return resp, nil
}
