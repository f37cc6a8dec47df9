package agent

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/flowforge/orchestrator/graph"
	"github.com/flowforge/orchestrator/graph/model"
)

// ChatModelSet resolves a model name (e.g. "claude-3-sonnet-20240229",
// "gpt-4", "gemini-pro") to the provider's model.ChatModel, so
// llm_generator never constructs a provider client per invocation.
// Entries are built once at startup from provider API keys.
type ChatModelSet struct {
	byModel   map[string]model.ChatModel
	byPrefix  []prefixModel
	defaultOf model.ChatModel
}

type prefixModel struct {
	prefix string
	m      model.ChatModel
}

// NewChatModelSet groups providers by name prefix, matching the
// convention every model name in this set actually follows (gpt-*,
// claude-*, gemini-*).
func NewChatModelSet() ChatModelSet {
	return ChatModelSet{byModel: make(map[string]model.ChatModel)}
}

// Register binds an exact model name to a provider instance.
func (s *ChatModelSet) Register(modelName string, m model.ChatModel) {
	if s.byModel == nil {
		s.byModel = make(map[string]model.ChatModel)
	}
	s.byModel[modelName] = m
}

// RegisterPrefix binds every model name starting with prefix (e.g.
// "claude-") to a provider instance, used when the exact model name
// isn't pre-registered.
func (s *ChatModelSet) RegisterPrefix(prefix string, m model.ChatModel) {
	s.byPrefix = append(s.byPrefix, prefixModel{prefix: prefix, m: m})
	if s.defaultOf == nil {
		s.defaultOf = m
	}
}

func (s ChatModelSet) resolve(modelName string) (model.ChatModel, bool) {
	if m, ok := s.byModel[modelName]; ok {
		return m, true
	}
	for _, pm := range s.byPrefix {
		if strings.HasPrefix(modelName, pm.prefix) {
			return pm.m, true
		}
	}
	if s.defaultOf != nil {
		return s.defaultOf, true
	}
	return nil, false
}

// LLMGenerator is the llm_generator built-in: renders input_template
// against the input map, sends it to the configured model's ChatModel,
// and records token cost, per spec §4.2 "LLM text generator".
type LLMGenerator struct {
	models ChatModelSet
	cost   *graph.CostTracker
}

func NewLLMGenerator(models ChatModelSet, cost *graph.CostTracker) *LLMGenerator {
	return &LLMGenerator{models: models, cost: cost}
}

func (g *LLMGenerator) Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error) {
	started := time.Now()

	modelName, _ := cfg["model"].(string)
	if modelName == "" {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "model is required"}
	}
	temperature := 1.0
	if n, ok := toFloat(cfg["temperature"]); ok {
		temperature = n
	}
	if temperature < 0 || temperature > 2 {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "temperature must be within [0, 2]"}
	}
	maxTokens := 1000
	if n, ok := toFloat(cfg["max_tokens"]); ok {
		maxTokens = int(n)
	}
	if maxTokens < 1 || maxTokens > 4000 {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "max_tokens must be within [1, 4000]"}
	}
	inputTemplate, _ := cfg["input_template"].(string)
	if inputTemplate == "" {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "input_template is required"}
	}

	prompt, err := renderTemplate(inputTemplate, input)
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "failed to render input_template", Cause: err}
	}

	client, ok := g.models.resolve(modelName)
	if !ok {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "no provider configured for model: " + modelName}
	}

	messages := []model.Message{{Role: model.RoleUser, Content: prompt}}
	out, err := client.Chat(ctx, messages, nil)
	if err != nil {
		return Result{}, classifyLLMError(err)
	}

	inputTokens := estimateTokens(prompt)
	outputTokens := estimateTokens(out.Text)
	if g.cost != nil {
		_ = g.cost.RecordLLMCall(modelName, inputTokens, outputTokens, "")
	}

	output := map[string]interface{}{
		"text":          out.Text,
		"model":         modelName,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	}
	if len(out.ToolCalls) > 0 {
		calls := make([]map[string]interface{}, 0, len(out.ToolCalls))
		for _, tc := range out.ToolCalls {
			calls = append(calls, map[string]interface{}{"name": tc.Name, "input": tc.Input})
		}
		output["tool_calls"] = calls
	}

	return Result{
		Output: output,
		Variables: map[string]interface{}{
			"generated_text": out.Text,
			"model_used":     modelName,
		},
		Metadata: newMetadata(started),
	}, nil
}

func renderTemplate(tmpl string, input map[string]interface{}) (string, error) {
	t, err := template.New("llm_input").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// estimateTokens is a rough token count (utf8 runes / 4) used only for
// cost tracking when the provider doesn't report usage; ChatOut carries
// no token-count field per model.ChatOut's contract.
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return n/4 + 1
}

func classifyLLMError(err error) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "auth") || strings.Contains(lower, "api key") || strings.Contains(lower, "unauthorized"):
		return &Error{Kind: KindAuthError, Message: fmt.Sprintf("LLM provider auth error: %s", msg), Cause: err}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("LLM provider timed out: %s", msg), Cause: err}
	default:
		return &Error{Kind: KindTransportError, Message: fmt.Sprintf("LLM provider call failed: %s", msg), Cause: err}
	}
}
