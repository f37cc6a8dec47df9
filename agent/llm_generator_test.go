package agent

import (
	"context"
	"testing"

	"github.com/flowforge/orchestrator/graph/model"
)

func TestLLMGenerator_RendersTemplateAndCallsModel(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hello Ada"}}}
	models := NewChatModelSet()
	models.RegisterPrefix("claude-", mock)

	g := NewLLMGenerator(models, nil)
	cfg := map[string]interface{}{
		"model":          "claude-3-sonnet-20240229",
		"temperature":    0.5,
		"max_tokens":     100.0,
		"input_template": "Say hello to {{.name}}",
	}
	input := map[string]interface{}{"name": "Ada"}

	result, err := g.Execute(context.Background(), cfg, input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output["text"] != "hello Ada" {
		t.Fatalf("unexpected text: %v", result.Output["text"])
	}
	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.Calls))
	}
	if got := mock.Calls[0].Messages[0].Content; got != "Say hello to Ada" {
		t.Fatalf("template not rendered, got %q", got)
	}
}

func TestLLMGenerator_RejectsOutOfRangeTemperature(t *testing.T) {
	g := NewLLMGenerator(NewChatModelSet(), nil)
	cfg := map[string]interface{}{
		"model": "claude-3-sonnet-20240229", "temperature": 5.0, "max_tokens": 10.0, "input_template": "x",
	}
	_, err := g.Execute(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for out-of-range temperature")
	}
}

func TestLLMGenerator_UnknownModel(t *testing.T) {
	g := NewLLMGenerator(NewChatModelSet(), nil)
	cfg := map[string]interface{}{
		"model": "unregistered-model", "temperature": 1.0, "max_tokens": 10.0, "input_template": "x",
	}
	_, err := g.Execute(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for unresolvable model")
	}
}
