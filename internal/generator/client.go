package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/course-studio/backend/internal/models"
)

// Mode selects which generative backend the pipelines talk to.
type Mode string

const (
	ModeLive Mode = "live"
	ModeCLI  Mode = "cli"
	ModeMock Mode = "mock"
)

const defaultMaxTokens = 8192

// LLMClient is the low-level call both backend adapters satisfy.
type LLMClient interface {
	Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is one generation call. Schema, when set, is the structured
// output contract the backend is asked to honour.
type LLMRequest struct {
	System      string
	User        string
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

// LLMResponse carries the two output channels of a backend: the structured
// payload and the textual history. Either may be empty.
type LLMResponse struct {
	Structured   json.RawMessage
	History      []Turn
	PromptTokens int
	OutputTokens int
}

// ContentGenerator is what the pipelines consume. The live Generator and
// the MockGenerator both implement it.
type ContentGenerator interface {
	Outline(ctx context.Context, p models.OutlineParams) (*LLMResponse, error)
	LessonCards(ctx context.Context, p models.LessonCardsParams) (*LLMResponse, error)
	SingleCard(ctx context.Context, p models.LessonCardsParams, brief *CardBrief) (*LLMResponse, error)
	PlanCards(ctx context.Context, p models.LessonCardsParams) (*LLMResponse, error)
	ModelName() string
}

// Generator wraps an LLMClient and adds the course-authoring calls.
type Generator struct {
	llm     LLMClient
	planner LLMClient
	model   string
}

// NewGenerator builds a Generator. planner may be nil, in which case the
// planning sub-stage uses llm as well.
func NewGenerator(llm LLMClient, planner LLMClient, model string) *Generator {
	if planner == nil {
		planner = llm
	}
	return &Generator{llm: llm, planner: planner, model: model}
}

func (g *Generator) ModelName() string {
	return g.model
}

func (g *Generator) Outline(ctx context.Context, p models.OutlineParams) (*LLMResponse, error) {
	resp, err := g.llm.Generate(ctx, &LLMRequest{
		System:      OutlineSystemPrompt(),
		User:        BuildOutlineUserPrompt(p),
		Schema:      CoursePlanSchema,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate outline: %w", err)
	}
	return resp, nil
}

func (g *Generator) LessonCards(ctx context.Context, p models.LessonCardsParams) (*LLMResponse, error) {
	resp, err := g.llm.Generate(ctx, &LLMRequest{
		System:      LessonCardsSystemPrompt(),
		User:        BuildLessonCardsUserPrompt(p),
		Schema:      LessonCardsSchema,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate lesson cards: %w", err)
	}
	return resp, nil
}

func (g *Generator) SingleCard(ctx context.Context, p models.LessonCardsParams, brief *CardBrief) (*LLMResponse, error) {
	resp, err := g.llm.Generate(ctx, &LLMRequest{
		System:      SingleCardSystemPrompt(),
		User:        BuildSingleCardUserPrompt(p, brief),
		Schema:      SingleCardSchema,
		MaxTokens:   2048,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate single card: %w", err)
	}
	return resp, nil
}

func (g *Generator) PlanCards(ctx context.Context, p models.LessonCardsParams) (*LLMResponse, error) {
	resp, err := g.planner.Generate(ctx, &LLMRequest{
		System:      PlannerSystemPrompt(),
		User:        BuildPlannerUserPrompt(p),
		Schema:      CardPlanSchema,
		MaxTokens:   2048,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("plan lesson cards: %w", err)
	}
	return resp, nil
}

// ── APIClient: Anthropic SDK (Production) ─────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
}

// NewAPIClient returns a ConfigurationError when no key is supplied, so the
// caller can decide to fall back to mock mode.
func NewAPIClient(apiKey, model string, opts ...option.RequestOption) (*APIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ConfigurationError{Reason: "ANTHROPIC_API_KEY is not set"}
	}
	// Retries are the caller's business; one request per call.
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(opts...)
	return &APIClient{client: &client, model: model}, nil
}

func (c *APIClient) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: param.NewOpt(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.Schema != nil {
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        req.Schema.Name,
				Description: anthropic.String(req.Schema.Description),
				Strict:      anthropic.Bool(true),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties:  req.Schema.Properties(),
					Required:    req.Schema.Required(),
					ExtraFields: map[string]any{"additionalProperties": false},
				},
			},
		}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	resp := &LLMResponse{
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}
	var texts []string
	for _, block := range message.Content {
		switch block.Type {
		case "tool_use":
			if req.Schema != nil && block.Name == req.Schema.Name && len(block.Input) > 0 {
				resp.Structured = json.RawMessage(block.Input)
			}
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		}
	}
	if len(texts) > 0 {
		resp.History = []Turn{{Role: "assistant", Content: texts}}
	}
	return resp, nil
}

// classifyAPIError maps credential and connectivity failures onto
// ConfigurationError. Cancellation passes through untouched.
func classifyAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &ConfigurationError{Reason: "credential rejected", Err: err}
		}
		return fmt.Errorf("anthropic API error: %w", err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ConfigurationError{Reason: "backend unreachable", Err: err}
	}
	return fmt.Errorf("anthropic API call: %w", err)
}
