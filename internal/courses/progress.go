package courses

import (
	"time"

	"github.com/course-studio/backend/internal/models"
)

// Phase labels recorded in the progress log.
const (
	PhaseReceived        = "received"
	PhaseNormalizeInput  = "normalizeInput"
	PhaseResolveCourse   = "resolveCourse"
	PhaseGenerateOutline = "generateOutline"
	PhaseGenerateCards   = "generateLessonCards"
	PhaseGenerateSingle  = "generateSingleCard"
	PhasePlanCards       = "planLessonCards"
	PhaseFallbackExtract = "fallbackExtract"
	PhaseValidatePlan    = "validatePlan"
	PhaseValidateSchema  = "validateSchema"
	PhasePersistPreview  = "persistPreview"
)

// progressLog is the append-only timeline of one pipeline run. Timestamps
// never go backwards even if the wall clock does. Not safe for concurrent
// use; stages of a run are sequential.
type progressLog struct {
	now     func() time.Time
	updates []models.ProgressUpdate
}

func newProgressLog(now func() time.Time) *progressLog {
	return &progressLog{now: now, updates: make([]models.ProgressUpdate, 0, 8)}
}

func (p *progressLog) add(text string) {
	ts := p.now().UnixMilli()
	if n := len(p.updates); n > 0 && ts < p.updates[n-1].TS {
		ts = p.updates[n-1].TS
	}
	p.updates = append(p.updates, models.ProgressUpdate{TS: ts, Text: text})
}

func (p *progressLog) list() []models.ProgressUpdate {
	out := make([]models.ProgressUpdate, len(p.updates))
	copy(out, p.updates)
	return out
}
