package courses

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/course-studio/backend/internal/models"
)

const (
	DefaultTheme       = "General"
	DefaultLessonTitle = "Lesson"
)

// NormalizeOutline turns an untrusted outline request into canonical
// parameters. It never fails.
func NormalizeOutline(in models.OutlineInput) models.OutlineParams {
	return models.OutlineParams{
		Theme:       orDefault(collapseSpace(in.Theme), DefaultTheme),
		Level:       collapseSpace(in.Level),
		Goal:        collapseSpace(in.Goal),
		LessonCount: models.Clamp(coerceCount(in.LessonCount, models.DefaultLessonCount), models.MinLessons, models.MaxLessons),
		UserBrief:   strings.TrimSpace(in.UserBrief),
	}
}

// NormalizeLessonCards turns an untrusted lesson-cards request into canonical
// parameters. Invalid course ids and unknown card types are dropped rather
// than rejected.
func NormalizeLessonCards(in models.LessonCardsInput) models.LessonCardsParams {
	p := models.LessonCardsParams{
		LessonTitle:  orDefault(collapseSpace(in.LessonTitle), DefaultLessonTitle),
		DesiredCount: models.Clamp(coerceCount(in.DesiredCount, models.DefaultCardCount), models.MinCards, models.MaxCards),
		UserBrief:    strings.TrimSpace(in.UserBrief),
	}

	if id, err := uuid.Parse(strings.TrimSpace(in.CourseID)); err == nil {
		p.CourseID = &id
	}

	if ct := models.CardType(strings.ToLower(strings.TrimSpace(in.DesiredCardType))); models.ValidCardTypes[ct] {
		p.DesiredCardType = ct
	}

	if in.Course != nil {
		p.Course = normalizeCourse(*in.Course)
	}

	for _, t := range in.ExistingTitles {
		if t = collapseSpace(t); t != "" {
			p.ExistingTitles = append(p.ExistingTitles, t)
		}
	}
	return p
}

func normalizeCourse(c models.CourseContext) *models.CourseContext {
	out := &models.CourseContext{
		Title:       collapseSpace(c.Title),
		Description: collapseSpace(c.Description),
		Category:    collapseSpace(c.Category),
		Level:       collapseSpace(c.Level),
	}
	if *out == (models.CourseContext{}) {
		return nil
	}
	return out
}

// coerceCount reads a count from a loosely typed JSON value. Fractions are
// truncated; anything non-numeric yields def.
func coerceCount(v any, def int) int {
	var f float64
	switch t := v.(type) {
	case nil:
		return def
	case int:
		return t
	case int64:
		f = float64(t)
	case float64:
		f = t
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return def
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		f = n
	default:
		return def
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	// Keep the conversion to int well-defined; anything this far out is
	// clamped by the caller anyway.
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(math.Trunc(f))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
