package generator

import (
	"fmt"

	"github.com/course-studio/backend/internal/models"
)

// Schema is a named JSON Schema handed to the generative backend as the
// structured-output contract.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Properties returns the top-level "properties" object of the definition.
func (s *Schema) Properties() map[string]any {
	props, _ := s.Definition["properties"].(map[string]any)
	return props
}

// Required returns the top-level "required" list of the definition.
func (s *Schema) Required() []string {
	switch r := s.Definition["required"].(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, v := range r {
			if name, ok := v.(string); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

func nullable(t string) []any { return []any{t, "null"} }

func object(props map[string]any) map[string]any {
	required := make([]any, 0, len(props))
	for _, k := range sortedKeys(props) {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// cardItemSchema is the flattened card union. Every property is declared and
// required; properties that do not apply to a card's type are sent as null.
func cardItemSchema() map[string]any {
	return object(map[string]any{
		"type": map[string]any{
			"type": "string",
			"enum": []any{string(models.CardText), string(models.CardQuiz), string(models.CardFillBlank)},
		},
		"title": map[string]any{"type": nullable("string")},
		"body": map[string]any{
			"type":        nullable("string"),
			"description": "Markdown body for text cards; null otherwise",
		},
		"question": map[string]any{"type": nullable("string")},
		"options": map[string]any{
			"type":  nullable("array"),
			"items": map[string]any{"type": "string"},
		},
		"answerIndex": map[string]any{
			"type":        nullable("integer"),
			"description": "0-based index into options",
		},
		"explanation":        map[string]any{"type": nullable("string")},
		"optionExplanations": map[string]any{"type": nullable("array"), "items": map[string]any{"type": "string"}},
		"hint": map[string]any{
			"type":        nullable("string"),
			"description": "Short nudge toward the answer without revealing it. Required for quiz cards",
		},
		"text": map[string]any{
			"type":        nullable("string"),
			"description": "Fill-blank sentence with [[1]], [[2]] placeholders",
		},
		"answers": map[string]any{
			"type": nullable("array"),
			"items": object(map[string]any{
				"placeholder": map[string]any{"type": "string", "description": "Placeholder number, e.g. \"1\" for [[1]]"},
				"answer":      map[string]any{"type": "string"},
			}),
			"description": "One entry per placeholder in text",
		},
		"caseSensitive": map[string]any{"type": nullable("boolean")},
	})
}

// lessonCardsDefinition states the card count in the description only.
// Strict tool schemas reject numeric and length bounds, so the parser
// enforces them.
func lessonCardsDefinition(minCards, maxCards int) map[string]any {
	count := fmt.Sprintf("Between %d and %d cards", minCards, maxCards)
	if minCards == maxCards {
		count = fmt.Sprintf("Exactly %d card", minCards)
	}
	return object(map[string]any{
		"lessonTitle": map[string]any{"type": "string"},
		"cards": map[string]any{
			"type":        "array",
			"items":       cardItemSchema(),
			"description": count,
		},
	})
}

// LessonCardsSchema is the wire contract for batch card generation.
var LessonCardsSchema = &Schema{
	Name:        "lesson_cards",
	Description: "An ordered batch of learning cards for one lesson",
	Definition:  lessonCardsDefinition(models.MinCards, models.MaxCards),
}

// SingleCardSchema is the wire contract when exactly one card is wanted.
var SingleCardSchema = &Schema{
	Name:        "lesson_single_card",
	Description: "Exactly one learning card for an existing lesson",
	Definition:  lessonCardsDefinition(1, 1),
}

// CoursePlanSchema is the wire contract for outline generation.
var CoursePlanSchema = &Schema{
	Name:        "course_plan",
	Description: "A course skeleton: course metadata and an ordered list of lessons",
	Definition: object(map[string]any{
		"course": object(map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": nullable("string")},
			"category":    map[string]any{"type": nullable("string")},
		}),
		"lessons": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"title":   map[string]any{"type": "string"},
				"summary": map[string]any{"type": nullable("string")},
			}),
			"description": fmt.Sprintf("Between %d and %d lessons", models.MinLessons, models.MaxLessons),
		},
	}),
}

// CardPlanSchema is the wire contract for the planning sub-stage.
var CardPlanSchema = &Schema{
	Name:        "lesson_card_plan",
	Description: "A card-by-card plan: one type and one-line brief per card",
	Definition: object(map[string]any{
		"cards": map[string]any{
			"type": "array",
			"items": object(map[string]any{
				"type": map[string]any{
					"type": "string",
					"enum": []any{string(models.CardText), string(models.CardQuiz), string(models.CardFillBlank)},
				},
				"brief": map[string]any{"type": "string"},
			}),
			"description": "One entry per card, in lesson order",
		},
	}),
}
