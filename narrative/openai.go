package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfunc/storyserver/world"
)

const systemPrompt = "You are the game master for a cooperative text adventure. " +
	"Respond with a JSON object containing fields story, statsUpdate, inventoryUpdate, and moneyUpdate. " +
	"statsUpdate may only use the keys STR, DEF and HP; inventoryUpdate is a list of item names; moneyUpdate is a number."

// OpenAIConfig configures the chat completion backed generator.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(openai.ChatModelGPT4)
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (world.Result, error) {
	ctx, span := otel.Tracer("github.com/wfunc/storyserver/narrative").Start(ctx, "narrative.Generate",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("narrative.model", o.model))

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(req)),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return world.Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return world.Result{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	res, err := Parse(completion.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return world.Result{}, err
	}
	return res, nil
}

func userPrompt(req Request) string {
	return "Story so far: " + req.StorySoFar + "\nPlayer action: " + req.Action
}
