package courses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/course-studio/backend/internal/generator"
	"github.com/course-studio/backend/internal/logger"
	"github.com/course-studio/backend/internal/models"
)

// fakeGenerator returns canned responses. Unset responses fall back to the
// mock generator so only the stage under test needs wiring.
type fakeGenerator struct {
	mock    *generator.MockGenerator
	outline *generator.LLMResponse
	cards   *generator.LLMResponse
	single  func(brief *generator.CardBrief) (*generator.LLMResponse, error)
	plan    *generator.LLMResponse
	err     error

	mu      sync.Mutex
	seen    []models.LessonCardsParams
	singles int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{mock: generator.NewMockGenerator()}
}

func (f *fakeGenerator) ModelName() string { return "fake" }

func (f *fakeGenerator) Outline(ctx context.Context, p models.OutlineParams) (*generator.LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.outline != nil {
		return f.outline, nil
	}
	return f.mock.Outline(ctx, p)
}

func (f *fakeGenerator) LessonCards(ctx context.Context, p models.LessonCardsParams) (*generator.LLMResponse, error) {
	f.mu.Lock()
	f.seen = append(f.seen, p)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.cards != nil {
		return f.cards, nil
	}
	return f.mock.LessonCards(ctx, p)
}

func (f *fakeGenerator) SingleCard(ctx context.Context, p models.LessonCardsParams, brief *generator.CardBrief) (*generator.LLMResponse, error) {
	f.mu.Lock()
	f.singles++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.single != nil {
		return f.single(brief)
	}
	return f.mock.SingleCard(ctx, p, brief)
}

func (f *fakeGenerator) PlanCards(ctx context.Context, p models.LessonCardsParams) (*generator.LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.plan != nil {
		return f.plan, nil
	}
	return f.mock.PlanCards(ctx, p)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func liveService(gen generator.ContentGenerator) *Service {
	return NewService(ServiceConfig{Mode: generator.ModeLive, Backend: gen})
}

func phases(updates []models.ProgressUpdate) []string {
	out := make([]string, len(updates))
	for i, u := range updates {
		out[i] = u.Text
	}
	return out
}

func TestGenerateOutline_MockClampsLessonCount(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeMock})
	ctx := context.Background()

	resp, err := svc.GenerateOutline(ctx, models.OutlineInput{Theme: "JS", LessonCount: 1.0})
	require.NoError(t, err)
	assert.Len(t, resp.Plan.Lessons, 3)

	resp, err = svc.GenerateOutline(ctx, models.OutlineInput{Theme: "JS", LessonCount: 99.0})
	require.NoError(t, err)
	assert.Len(t, resp.Plan.Lessons, 30)

	assert.Equal(t, []string{PhaseReceived, PhaseNormalizeInput, PhaseGenerateOutline, PhaseValidatePlan, PhasePersistPreview}, phases(resp.Updates))
}

func TestGenerateLessonCards_MockClampsCount(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeMock})
	ctx := context.Background()

	resp, err := svc.GenerateLessonCards(ctx, models.LessonCardsInput{LessonTitle: "L", DesiredCount: 1.0})
	require.NoError(t, err)
	assert.Len(t, resp.Payload.Cards, 3)

	resp, err = svc.GenerateLessonCards(ctx, models.LessonCardsInput{LessonTitle: "L", DesiredCount: 99.0})
	require.NoError(t, err)
	assert.Len(t, resp.Payload.Cards, 20)

	assert.Equal(t, []string{PhaseReceived, PhaseNormalizeInput, PhaseGenerateCards, PhaseValidateSchema, PhasePersistPreview}, phases(resp.Updates))
}

func TestGenerateLessonCards_MockIsDeterministic(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeMock})
	in := models.LessonCardsInput{LessonTitle: "Closures", DesiredCount: 6.0}

	a, err := svc.GenerateLessonCards(context.Background(), in)
	require.NoError(t, err)
	b, err := svc.GenerateLessonCards(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, a.Payload, b.Payload)
	assert.Equal(t, []models.CardType{
		models.CardText, models.CardQuiz, models.CardFillBlank,
		models.CardText, models.CardQuiz, models.CardFillBlank,
	}, a.Payload.CardTypes())
}

func TestGenerateLessonCards_FallbackFromHistory(t *testing.T) {
	lc := generator.MockLessonCards(models.LessonCardsParams{LessonTitle: "L", DesiredCount: 4})
	raw, err := generator.EncodeLessonCards(lc)
	require.NoError(t, err)

	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{
		History: []generator.Turn{{Role: "assistant", Content: []string{string(raw)}}},
	}
	reg := prometheus.NewRegistry()
	svc := NewService(ServiceConfig{Mode: generator.ModeLive, Backend: gen, Metrics: NewMetrics(reg)})

	resp, err := svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 4.0})
	require.NoError(t, err)
	assert.Equal(t, lc.CardTypes(), resp.Payload.CardTypes())
	assert.Contains(t, phases(resp.Updates), PhaseFallbackExtract)

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.fallbacks.WithLabelValues(pipelineLessonCards, "recovered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.runs.WithLabelValues(pipelineLessonCards, "live", "ok")))
}

func TestGenerateLessonCards_FallbackStillValidated(t *testing.T) {
	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{
		History: []generator.Turn{{Role: "assistant", Content: []string{`{"lessonTitle":"L","cards":[]}`}}},
	}

	_, err := liveService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L"})
	var sm *generator.SchemaMismatchError
	require.ErrorAs(t, err, &sm)
}

func TestGenerateLessonCards_NoOutput(t *testing.T) {
	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{
		History: []generator.Turn{{Role: "assistant", Content: []string{"Sorry, I can't help with that."}}},
	}

	_, err := liveService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generator.ErrNoOutput))
	assert.Contains(t, err.Error(), pipelineLessonCards)
}

func TestGenerateLessonCards_OneBadCardFailsBatch(t *testing.T) {
	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{Structured: mustJSON(t, map[string]any{
		"lessonTitle": "L",
		"cards": []any{
			map[string]any{"type": "text", "title": nil, "body": "ok", "question": nil, "options": nil, "answerIndex": nil, "explanation": nil, "optionExplanations": nil, "hint": nil, "text": nil, "answers": nil, "caseSensitive": nil},
			map[string]any{"type": "quiz", "title": nil, "body": nil, "question": "q", "options": []string{"a", "b"}, "answerIndex": 99, "explanation": nil, "optionExplanations": nil, "hint": "h", "text": nil, "answers": nil, "caseSensitive": nil},
			map[string]any{"type": "text", "title": nil, "body": "ok", "question": nil, "options": nil, "answerIndex": nil, "explanation": nil, "optionExplanations": nil, "hint": nil, "text": nil, "answers": nil, "caseSensitive": nil},
		},
	})}

	resp, err := liveService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 3.0})
	assert.Nil(t, resp)
	var iv *generator.InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, generator.QuizAnswerOutOfRange, iv.Kind)
	assert.Equal(t, 2, iv.Card)
}

func TestGenerateLessonCards_MissingHintRejected(t *testing.T) {
	lc := generator.MockLessonCards(models.LessonCardsParams{LessonTitle: "L", DesiredCount: 3, DesiredCardType: models.CardQuiz})
	quiz := lc.Cards[0].(models.QuizCard)
	quiz.Hint = nil
	lc.Cards[0] = quiz
	raw, err := generator.EncodeLessonCards(lc)
	require.NoError(t, err)

	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{Structured: raw}

	_, err = liveService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 3.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hint")
}

func TestGenerateLessonCards_ConfigurationError(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeLive})
	_, err := svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L"})
	assert.True(t, generator.IsConfigurationError(err))

	gen := newFakeGenerator()
	gen.err = &generator.ConfigurationError{Reason: "credential rejected"}
	_, err = liveService(gen).GenerateOutline(context.Background(), models.OutlineInput{Theme: "x"})
	assert.True(t, generator.IsConfigurationError(err))
}

func TestGenerateLessonCards_CancellationPassesThrough(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeMock})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GenerateLessonCards(ctx, models.LessonCardsInput{LessonTitle: "L"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateLessonCards_CourseEnrichment(t *testing.T) {
	id := uuid.New()
	lookup := &fakeLookup{courses: map[uuid.UUID]models.CourseContext{id: {Title: "Go for Gophers", Level: "beginner"}}}
	gen := newFakeGenerator()
	svc := NewService(ServiceConfig{Mode: generator.ModeLive, Backend: gen, Lookup: lookup})

	resp, err := svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", CourseID: id.String()})
	require.NoError(t, err)
	assert.Contains(t, phases(resp.Updates), PhaseResolveCourse)
	require.Len(t, gen.seen, 1)
	assert.Equal(t, "Go for Gophers", gen.seen[0].Course.Title)

	// An explicit course wins over the lookup.
	_, err = svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{
		LessonTitle: "L", CourseID: id.String(), Course: &models.CourseContext{Title: "Explicit"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Explicit", gen.seen[1].Course.Title)
	assert.Equal(t, 1, lookup.calls)
}

func TestGenerateLessonCards_CourseLookupFailsOpen(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	gen := newFakeGenerator()
	svc := NewService(ServiceConfig{Mode: generator.ModeLive, Backend: gen, Lookup: lookup})

	resp, err := svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", CourseID: uuid.NewString()})
	require.NoError(t, err)
	assert.NotNil(t, resp.Payload)
	assert.Nil(t, gen.seen[0].Course)
}

func TestGenerateLessonCards_DesiredTypeEnforced(t *testing.T) {
	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{Structured: func() json.RawMessage {
		raw, err := generator.EncodeLessonCards(generator.MockLessonCards(models.LessonCardsParams{LessonTitle: "L", DesiredCount: 3}))
		require.NoError(t, err)
		return raw
	}()}

	_, err := liveService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCardType: "quiz"})
	var iv *generator.InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, generator.TypeMismatch, iv.Kind)
}

// ── Planned mode ────────────────────────────────────────

func plannedService(gen generator.ContentGenerator) *Service {
	return NewService(ServiceConfig{Mode: generator.ModeLive, Backend: gen, PlanningEnabled: true, PlanningConcurrency: 2})
}

func TestPlannedBatch_MatchesPlan(t *testing.T) {
	gen := newFakeGenerator()
	resp, err := plannedService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "Interfaces", DesiredCount: 7.0})
	require.NoError(t, err)

	assert.Len(t, resp.Payload.Cards, 7)
	assert.Equal(t, 7, gen.singles)
	assert.Equal(t, generator.MockLessonCards(models.LessonCardsParams{LessonTitle: "Interfaces", DesiredCount: 7}).CardTypes(), resp.Payload.CardTypes())
	assert.Equal(t, []string{PhaseReceived, PhaseNormalizeInput, PhasePlanCards, PhaseGenerateCards, PhaseValidateSchema, PhasePersistPreview}, phases(resp.Updates))
}

func TestPlannedBatch_CardTypeMustFollowPlan(t *testing.T) {
	gen := newFakeGenerator()
	gen.single = func(brief *generator.CardBrief) (*generator.LLMResponse, error) {
		// Always answer with a text card regardless of the planned type.
		swapped := *brief
		swapped.Type = models.CardText
		return gen.mock.SingleCard(context.Background(), models.LessonCardsParams{LessonTitle: "L"}, &swapped)
	}

	_, err := plannedService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 3.0})
	var iv *generator.InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, generator.TypeMismatch, iv.Kind)
}

func TestPlannedBatch_PlanCountMismatch(t *testing.T) {
	gen := newFakeGenerator()
	gen.plan = &generator.LLMResponse{Structured: json.RawMessage(`{"cards":[{"type":"text","brief":"a"},{"type":"text","brief":"b"},{"type":"text","brief":"c"}]}`)}

	_, err := plannedService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 5.0})
	var iv *generator.InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, generator.CountOutOfRange, iv.Kind)
	assert.Zero(t, gen.singles)
}

func TestPlannedBatch_SingleFailureAbortsBatch(t *testing.T) {
	gen := newFakeGenerator()
	gen.single = func(brief *generator.CardBrief) (*generator.LLMResponse, error) {
		if brief.Index == 1 {
			return &generator.LLMResponse{}, nil
		}
		return gen.mock.SingleCard(context.Background(), models.LessonCardsParams{LessonTitle: "L"}, brief)
	}

	resp, err := plannedService(gen).GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 3.0})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, generator.ErrNoOutput))
	assert.Contains(t, err.Error(), "card 2")
}

// ── Single card ─────────────────────────────────────────

func TestGenerateSingleCard(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeMock})

	resp, err := svc.GenerateSingleCard(context.Background(), models.LessonCardsInput{
		LessonTitle:     "L",
		DesiredCount:    12.0,
		DesiredCardType: "fill-blank",
		ExistingTitles:  []string{"L 1", "L 2"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Payload.Cards, 1)
	assert.Equal(t, models.CardFillBlank, resp.Payload.Cards[0].CardType())
	assert.Equal(t, []string{PhaseReceived, PhaseNormalizeInput, PhaseGenerateSingle, PhaseValidateSchema, PhasePersistPreview}, phases(resp.Updates))
}

func TestGenerateSingleCard_HintOptional(t *testing.T) {
	single := &models.LessonCards{LessonTitle: "L", Cards: []models.Card{
		models.QuizCard{Type: models.CardQuiz, Question: "q", Options: []string{"a", "b"}, AnswerIndex: 1},
	}}
	raw, err := generator.EncodeLessonCards(single)
	require.NoError(t, err)

	gen := newFakeGenerator()
	gen.single = func(*generator.CardBrief) (*generator.LLMResponse, error) {
		return &generator.LLMResponse{Structured: raw}, nil
	}

	resp, err := liveService(gen).GenerateSingleCard(context.Background(), models.LessonCardsInput{LessonTitle: "L"})
	require.NoError(t, err)
	assert.Equal(t, models.CardQuiz, resp.Payload.Cards[0].CardType())

	_, err = liveService(gen).GenerateSingleCard(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCardType: "text"})
	var iv *generator.InvariantViolationError
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, generator.TypeMismatch, iv.Kind)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.observeRun(pipelineOutline, generator.ModeMock, nil, 0)
	m.observeFallback(pipelineOutline, false)
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "canceled", outcome(context.Canceled))
	assert.Equal(t, "config_error", outcome(&generator.ConfigurationError{Reason: "x"}))
	assert.Equal(t, "schema_mismatch", outcome(&generator.SchemaMismatchError{}))
	assert.Equal(t, "invariant_violation", outcome(&generator.InvariantViolationError{Kind: generator.HintRequired}))
	assert.Equal(t, "no_output", outcome(generator.ErrNoOutput))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}

func TestMockMode_BracketedLessonTitle(t *testing.T) {
	svc := NewService(ServiceConfig{Mode: generator.ModeMock})

	resp, err := svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "Arrays [[2]]", DesiredCount: 3.0})
	require.NoError(t, err)
	assert.Equal(t, "Arrays [[2]]", resp.Payload.LessonTitle)
	assert.Len(t, resp.Payload.Cards, 3)

	single, err := svc.GenerateSingleCard(context.Background(), models.LessonCardsInput{LessonTitle: "Arrays [[3]]", DesiredCardType: "fill-blank"})
	require.NoError(t, err)
	require.Len(t, single.Payload.Cards, 1)
	assert.Equal(t, models.CardFillBlank, single.Payload.Cards[0].CardType())
}

func TestGenerateLessonCards_ConcurrentRequestsDoNotInterfere(t *testing.T) {
	services := map[string]*Service{
		"batch":   NewService(ServiceConfig{Mode: generator.ModeMock}),
		"planned": NewService(ServiceConfig{Mode: generator.ModeMock, PlanningEnabled: true, PlanningConcurrency: 3}),
	}
	for name, svc := range services {
		t.Run(name, func(t *testing.T) {
			const n = 20
			type result struct {
				resp *models.LessonCardsResponse
				err  error
			}
			results := make([]result, n)

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					resp, err := svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{
						LessonTitle:  fmt.Sprintf("Lesson %d", i),
						DesiredCount: float64(3 + i%18),
					})
					results[i] = result{resp, err}
				}(i)
			}
			wg.Wait()

			for i, r := range results {
				require.NoError(t, r.err, "request %d", i)
				assert.Equal(t, fmt.Sprintf("Lesson %d", i), r.resp.Payload.LessonTitle)
				assert.Len(t, r.resp.Payload.Cards, 3+i%18, "request %d", i)
				assert.Equal(t, PhaseReceived, r.resp.Updates[0].Text)
				assert.Equal(t, PhasePersistPreview, r.resp.Updates[len(r.resp.Updates)-1].Text)
			}
		})
	}
}

func TestGenerateLessonCards_RecordsUsageAndModel(t *testing.T) {
	raw, err := generator.EncodeLessonCards(generator.MockLessonCards(models.LessonCardsParams{LessonTitle: "L", DesiredCount: 3}))
	require.NoError(t, err)
	gen := newFakeGenerator()
	gen.cards = &generator.LLMResponse{Structured: raw, PromptTokens: 120, OutputTokens: 340}

	core, logs := observer.New(zap.DebugLevel)
	svc := NewService(ServiceConfig{
		Mode:    generator.ModeLive,
		Backend: gen,
		Logger:  &logger.Logger{SugaredLogger: zap.New(core).Sugar()},
		Metrics: NewMetrics(prometheus.NewRegistry()),
	})

	_, err = svc.GenerateLessonCards(context.Background(), models.LessonCardsInput{LessonTitle: "L", DesiredCount: 3.0})
	require.NoError(t, err)

	assert.Equal(t, 120.0, testutil.ToFloat64(svc.metrics.tokens.WithLabelValues(pipelineLessonCards, "prompt")))
	assert.Equal(t, 340.0, testutil.ToFloat64(svc.metrics.tokens.WithLabelValues(pipelineLessonCards, "output")))

	done := logs.FilterMessage("lesson cards generated").All()
	require.Len(t, done, 1)
	assert.Equal(t, "fake", done[0].ContextMap()["model"])

	usage := logs.FilterMessage("backend usage").All()
	require.Len(t, usage, 1)
	assert.EqualValues(t, 340, usage[0].ContextMap()["usage_output"])
}

func TestService_Mode(t *testing.T) {
	assert.Equal(t, generator.ModeMock, NewService(ServiceConfig{Mode: generator.ModeMock}).Mode())
	assert.Equal(t, generator.ModeLive, liveService(newFakeGenerator()).Mode())
}
