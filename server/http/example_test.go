package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/chat"
	"github.com/KamdynS/weather-agents/memory/inmemory"
)

type exAgent struct{}

func (exAgent) Run(ctx context.Context, input core.Message) (core.Message, error) {
	return core.Message{Role: "assistant", Content: "pong", Meta: map[string]string{core.MetaState: "routed"}}, nil
}

func ExampleServer_chat() {
	s := NewServer(chat.New(exAgent{}, inmemory.NewStore()), Config{})
	reqBody, _ := json.Marshal(ChatRequest{Message: "ping", SessionID: "demo"})
	req := httptest.NewRequest("POST", "/v1/chat", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp ChatResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	fmt.Println(w.Code, resp.Message, resp.State)
	// Output:
	// 200 pong routed
}
