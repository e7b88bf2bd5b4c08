package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/impact-solutions/chat-gateway/internal/chat"
)

// maxToolRounds bounds the tool-call loop within one persona invocation.
const maxToolRounds = 5

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Run invokes a persona over the accumulated history. Declared tools
// may be called any number of times before the final text resolves;
// the call does not return until all nested tool calls are settled.
func (c *OpenAIClient) Run(ctx context.Context, persona *chat.Persona, history chat.History) (*chat.RunResult, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: persona.Instructions,
	})
	for _, turn := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turnText(turn),
		})
	}

	var tools []openai.Tool
	for i := range persona.Tools {
		t := persona.Tools[i]
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	result := &chat.RunResult{}

	for round := 0; round <= maxToolRounds; round++ {
		req := openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    msgs,
			Temperature: persona.Decoding.Temperature,
			TopP:        persona.Decoding.TopP,
			MaxTokens:   persona.Decoding.MaxTokens,
			Tools:       tools,
		}
		if persona.OutputSchema != nil {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   persona.OutputSchemaName,
					Schema: persona.OutputSchema,
					Strict: true,
				},
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, wrapUpstreamErr(err)
		}
		if len(resp.Choices) == 0 {
			log.Warn().Str("persona", persona.Name).Msg("ai: empty choices")
			return result, nil
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			result.Text = choice.Content
			result.NewTurns = append(result.NewTurns, chat.AssistantTurn(choice.Content))
			return result, nil
		}

		msgs = append(msgs, choice)
		for _, call := range choice.ToolCalls {
			output := c.execTool(ctx, persona, call)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    output,
			})
			result.NewTurns = append(result.NewTurns, chat.AssistantTurn(
				fmt.Sprintf("[tool %s] %s", call.Function.Name, output),
			))
		}
	}

	return nil, fmt.Errorf("ai: tool loop exceeded %d rounds for persona %q", maxToolRounds, persona.Name)
}

func (c *OpenAIClient) execTool(ctx context.Context, persona *chat.Persona, call openai.ToolCall) string {
	for i := range persona.Tools {
		t := persona.Tools[i]
		if t.Name != call.Function.Name {
			continue
		}
		out, err := t.Call(ctx, json.RawMessage(call.Function.Arguments))
		if err != nil {
			log.Warn().Err(err).Str("tool", t.Name).Msg("ai: tool call rejected")
			return fmt.Sprintf(`{"error":"invalid arguments for %s"}`, t.Name)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return `{"error":"tool result not serializable"}`
		}
		return string(b)
	}
	return fmt.Sprintf(`{"error":"unknown tool %s"}`, call.Function.Name)
}

// Judge sends one system+input pair and returns the raw model text.
// Used by guardrail rules that need a model verdict.
func (c *OpenAIClient) Judge(ctx context.Context, system, input string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", wrapUpstreamErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai: empty judge response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Moderate runs the moderation endpoint and returns flagged categories.
func (c *OpenAIClient) Moderate(ctx context.Context, text string) ([]string, error) {
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
		Model: openai.ModerationOmniLatest,
		Input: text,
	})
	if err != nil {
		return nil, wrapUpstreamErr(err)
	}
	var flagged []string
	for _, r := range resp.Results {
		if !r.Flagged {
			continue
		}
		b, err := json.Marshal(r.Categories)
		if err != nil {
			continue
		}
		var cats map[string]bool
		if err := json.Unmarshal(b, &cats); err != nil {
			continue
		}
		for name, hit := range cats {
			if hit {
				flagged = append(flagged, name)
			}
		}
	}
	return flagged, nil
}

// wrapUpstreamErr tags throttling responses so the orchestrator can
// retry them; anything else passes through untouched.
func wrapUpstreamErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %v", chat.ErrUpstreamRateLimited, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("%w: %v", chat.ErrUpstreamRateLimited, err)
	}
	return err
}

func turnText(turn chat.Turn) string {
	parts := make([]string, 0, len(turn.Content))
	for _, p := range turn.Content {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n")
}
