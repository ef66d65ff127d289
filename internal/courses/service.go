package courses

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/course-studio/backend/internal/generator"
	"github.com/course-studio/backend/internal/logger"
	"github.com/course-studio/backend/internal/models"
)

// ServiceConfig wires a Service. Backend is required unless Mode is
// ModeMock; Lookup, Logger and Metrics are optional.
type ServiceConfig struct {
	Mode                generator.Mode
	Backend             generator.ContentGenerator
	Lookup              CourseLookup
	Logger              *logger.Logger
	Metrics             *Metrics
	PlanningEnabled     bool
	PlanningConcurrency int
	Now                 func() time.Time
}

// Service runs the outline and lesson-card pipelines. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	mode        generator.Mode
	backend     generator.ContentGenerator
	mock        *generator.MockGenerator
	lookup      CourseLookup
	log         *logger.Logger
	metrics     *Metrics
	planning    bool
	concurrency int
	now         func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		mode:        cfg.Mode,
		backend:     cfg.Backend,
		mock:        generator.NewMockGenerator(),
		lookup:      cfg.Lookup,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		planning:    cfg.PlanningEnabled,
		concurrency: cfg.PlanningConcurrency,
		now:         cfg.Now,
	}
	if s.mode == "" {
		s.mode = generator.ModeMock
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Mode() generator.Mode {
	return s.mode
}

func (s *Service) generatorFor() (generator.ContentGenerator, error) {
	if s.mode == generator.ModeMock {
		return s.mock, nil
	}
	if s.backend == nil {
		return nil, &generator.ConfigurationError{Reason: fmt.Sprintf("no backend configured for %s mode", s.mode)}
	}
	return s.backend, nil
}

// ── Outline ─────────────────────────────────────────────

func (s *Service) GenerateOutline(ctx context.Context, in models.OutlineInput) (resp *models.OutlineResponse, err error) {
	start := s.now()
	progress := newProgressLog(s.now)
	progress.add(PhaseReceived)
	defer func() { s.finish(pipelineOutline, start, err) }()

	params := NormalizeOutline(in)
	progress.add(PhaseNormalizeInput)
	s.log.Info("outline generation started", "theme", params.Theme, "lessonCount", params.LessonCount, "mode", s.mode)

	gen, err := s.generatorFor()
	if err != nil {
		return nil, err
	}

	progress.add(PhaseGenerateOutline)
	out, err := gen.Outline(ctx, params)
	if err != nil {
		return nil, err
	}

	raw, err := s.payload(pipelineOutline, out, progress)
	if err != nil {
		return nil, err
	}

	plan, err := generator.ValidateOutline(raw)
	progress.add(PhaseValidatePlan)
	if err != nil {
		s.log.Warn("outline validation failed", "reason", err.Error())
		return nil, err
	}

	progress.add(PhasePersistPreview)
	s.log.Info("outline generated", "model", gen.ModelName(), "theme", params.Theme, "lessons", len(plan.Lessons), "duration_ms", s.now().Sub(start).Milliseconds())
	return &models.OutlineResponse{Plan: plan, Updates: progress.list()}, nil
}

// ── Lesson Cards ────────────────────────────────────────

func (s *Service) GenerateLessonCards(ctx context.Context, in models.LessonCardsInput) (resp *models.LessonCardsResponse, err error) {
	start := s.now()
	progress := newProgressLog(s.now)
	progress.add(PhaseReceived)
	defer func() { s.finish(pipelineLessonCards, start, err) }()

	params := NormalizeLessonCards(in)
	progress.add(PhaseNormalizeInput)
	s.resolveCourse(ctx, &params, progress)
	s.log.Info("lesson cards generation started",
		"lessonTitle", params.LessonTitle, "desiredCount", params.DesiredCount,
		"desiredCardType", params.DesiredCardType, "mode", s.mode, "planned", s.planning)

	gen, err := s.generatorFor()
	if err != nil {
		return nil, err
	}

	var lc *models.LessonCards
	if s.planning {
		lc, err = s.plannedBatch(ctx, gen, params, progress)
	} else {
		lc, err = s.singleBatch(ctx, gen, params, progress)
	}
	if err != nil {
		return nil, err
	}

	s.reportQuality(lc, params.ExistingTitles)
	progress.add(PhasePersistPreview)
	s.log.Info("lesson cards generated", "model", gen.ModelName(), "lessonTitle", params.LessonTitle, "cards", len(lc.Cards), "duration_ms", s.now().Sub(start).Milliseconds())
	return &models.LessonCardsResponse{Payload: lc, Updates: progress.list()}, nil
}

func (s *Service) singleBatch(ctx context.Context, gen generator.ContentGenerator, params models.LessonCardsParams, progress *progressLog) (*models.LessonCards, error) {
	progress.add(PhaseGenerateCards)
	out, err := gen.LessonCards(ctx, params)
	if err != nil {
		return nil, err
	}

	raw, err := s.payload(pipelineLessonCards, out, progress)
	if err != nil {
		return nil, err
	}

	policy := generator.AuthoringPolicy
	policy.ExpectedType = params.DesiredCardType
	lc, err := generator.ValidateLessonCards(raw, generator.BatchVariant, policy)
	progress.add(PhaseValidateSchema)
	if err != nil {
		s.log.Warn("lesson cards validation failed", "lessonTitle", params.LessonTitle, "reason", err.Error())
		return nil, err
	}
	return lc, nil
}

// plannedBatch asks for a card-by-card plan, then writes each planned card
// with its own single-card call. Any failed card fails the whole batch.
func (s *Service) plannedBatch(ctx context.Context, gen generator.ContentGenerator, params models.LessonCardsParams, progress *progressLog) (*models.LessonCards, error) {
	progress.add(PhasePlanCards)
	out, err := gen.PlanCards(ctx, params)
	if err != nil {
		return nil, err
	}
	raw, err := s.payload(pipelinePlan, out, progress)
	if err != nil {
		return nil, err
	}
	plan, err := generator.ParseCardPlan(raw, params.DesiredCount, params.DesiredCardType)
	if err != nil {
		s.log.Warn("card plan rejected", "lessonTitle", params.LessonTitle, "reason", err.Error())
		return nil, err
	}

	progress.add(PhaseGenerateCards)
	cards := make([]models.Card, len(plan.Cards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, brief := range plan.Cards {
		g.Go(func() error {
			card, err := s.plannedCard(gctx, gen, params, brief)
			if err != nil {
				return fmt.Errorf("card %d: %w", brief.Index+1, err)
			}
			cards[brief.Index] = card
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("planned card generation failed", "lessonTitle", params.LessonTitle, "reason", err.Error())
		return nil, err
	}

	lc := &models.LessonCards{LessonTitle: params.LessonTitle, Cards: cards}
	policy := generator.AuthoringPolicy
	policy.ExpectedType = params.DesiredCardType
	err = generator.CheckLessonCards(lc, policy)
	progress.add(PhaseValidateSchema)
	if err != nil {
		s.log.Warn("planned batch validation failed", "lessonTitle", params.LessonTitle, "reason", err.Error())
		return nil, err
	}
	return lc, nil
}

func (s *Service) plannedCard(ctx context.Context, gen generator.ContentGenerator, params models.LessonCardsParams, brief generator.CardBrief) (models.Card, error) {
	out, err := gen.SingleCard(ctx, params, &brief)
	if err != nil {
		return nil, err
	}
	raw, err := s.payload(pipelineSingleCard, out, nil)
	if err != nil {
		return nil, err
	}
	policy := generator.Policy{RequireHint: true, ExpectedType: brief.Type, MinCards: 1, MaxCards: 1}
	lc, err := generator.ValidateLessonCards(raw, generator.SingleVariant, policy)
	if err != nil {
		return nil, err
	}
	return lc.Cards[0], nil
}

// ── Single Card ─────────────────────────────────────────

// GenerateSingleCard produces exactly one card for an existing lesson. The
// count in the input is ignored. Quiz hints are optional here.
func (s *Service) GenerateSingleCard(ctx context.Context, in models.LessonCardsInput) (resp *models.LessonCardsResponse, err error) {
	start := s.now()
	progress := newProgressLog(s.now)
	progress.add(PhaseReceived)
	defer func() { s.finish(pipelineSingleCard, start, err) }()

	params := NormalizeLessonCards(in)
	params.DesiredCount = 1
	progress.add(PhaseNormalizeInput)
	s.resolveCourse(ctx, &params, progress)
	s.log.Info("single card generation started", "lessonTitle", params.LessonTitle, "desiredCardType", params.DesiredCardType, "mode", s.mode)

	gen, err := s.generatorFor()
	if err != nil {
		return nil, err
	}

	progress.add(PhaseGenerateSingle)
	out, err := gen.SingleCard(ctx, params, nil)
	if err != nil {
		return nil, err
	}
	raw, err := s.payload(pipelineSingleCard, out, progress)
	if err != nil {
		return nil, err
	}

	lc, err := generator.ValidateLessonCards(raw, generator.SingleVariant, generator.SinglePolicy(params.DesiredCardType))
	progress.add(PhaseValidateSchema)
	if err != nil {
		s.log.Warn("single card validation failed", "lessonTitle", params.LessonTitle, "reason", err.Error())
		return nil, err
	}

	s.reportQuality(lc, params.ExistingTitles)
	progress.add(PhasePersistPreview)
	s.log.Info("single card generated", "model", gen.ModelName(), "lessonTitle", params.LessonTitle, "type", lc.Cards[0].CardType(), "duration_ms", s.now().Sub(start).Milliseconds())
	return &models.LessonCardsResponse{Payload: lc, Updates: progress.list()}, nil
}

// ── Shared Stages ───────────────────────────────────────

// payload returns the structured output, or the history-channel fallback
// when the structured channel is empty. progress may be nil for sub-calls
// that run concurrently.
func (s *Service) payload(pipeline string, out *generator.LLMResponse, progress *progressLog) (json.RawMessage, error) {
	s.metrics.observeTokens(pipeline, out)
	if out != nil && (out.PromptTokens > 0 || out.OutputTokens > 0) {
		s.log.Debug("backend usage", "pipeline", pipeline, "usage_prompt", out.PromptTokens, "usage_output", out.OutputTokens)
	}
	if out != nil && len(out.Structured) > 0 && string(out.Structured) != "null" {
		return out.Structured, nil
	}

	if progress != nil {
		progress.add(PhaseFallbackExtract)
	}
	var history []generator.Turn
	if out != nil {
		history = out.History
	}
	raw, ok := generator.ExtractFromHistory(history)
	s.metrics.observeFallback(pipeline, ok)
	if !ok {
		s.log.Warn("no structured output and nothing recoverable from history", "pipeline", pipeline)
		return nil, fmt.Errorf("%s: %w", pipeline, generator.ErrNoOutput)
	}
	s.log.Info("recovered output from history", "pipeline", pipeline)
	return raw, nil
}

// resolveCourse fills in course metadata from the lookup when the request
// names a course id but carries no course. Failures are logged and ignored.
func (s *Service) resolveCourse(ctx context.Context, params *models.LessonCardsParams, progress *progressLog) {
	if params.CourseID == nil || params.Course != nil || s.lookup == nil {
		return
	}
	progress.add(PhaseResolveCourse)
	course, err := s.lookup.GetCourseContext(ctx, *params.CourseID)
	if err != nil {
		s.log.Warn("course lookup failed, continuing without course context", "courseId", params.CourseID.String(), "error", err.Error())
		return
	}
	params.Course = course
}

func (s *Service) reportQuality(lc *models.LessonCards, existing []string) {
	for _, issue := range generator.AssessCards(lc, existing) {
		s.log.Warn("card quality issue", "lessonTitle", lc.LessonTitle, "card", issue.Card, "issue", issue.Issue)
	}
}

func (s *Service) finish(pipeline string, start time.Time, err error) {
	s.metrics.observeRun(pipeline, s.mode, err, s.now().Sub(start))
	if err != nil {
		s.log.Error("generation failed", "pipeline", pipeline, "mode", s.mode, "error", err.Error())
	}
}
