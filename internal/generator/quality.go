package generator

import (
	"fmt"
	"strings"

	"github.com/course-studio/backend/internal/models"
)

// QualityIssue is a soft finding on an otherwise valid card. Issues are
// reported, never rejected.
type QualityIssue struct {
	Card  int
	Issue string
}

func (q QualityIssue) String() string {
	return fmt.Sprintf("card %d: %s", q.Card, q.Issue)
}

// AssessCards flags dead fill-blank answer keys, duplicate titles (within
// the batch or against existingTitles), duplicate quiz options and quiz
// titles that give away the correct option.
func AssessCards(lc *models.LessonCards, existingTitles []string) []QualityIssue {
	var issues []QualityIssue

	seen := make(map[string]bool, len(existingTitles)+len(lc.Cards))
	for _, t := range existingTitles {
		if k := titleKey(t); k != "" {
			seen[k] = true
		}
	}

	for i, c := range lc.Cards {
		pos := i + 1
		if k := titleKey(c.CardTitle()); k != "" {
			if seen[k] {
				issues = append(issues, QualityIssue{pos, fmt.Sprintf("duplicate title %q", c.CardTitle())})
			}
			seen[k] = true
		}

		switch card := c.(type) {
		case models.FillBlankCard:
			if dead := UnreferencedAnswerKeys(card); len(dead) > 0 {
				issues = append(issues, QualityIssue{pos, "unreferenced answer keys: " + strings.Join(dead, ", ")})
			}
		case models.QuizCard:
			opts := make(map[string]bool, len(card.Options))
			for _, o := range card.Options {
				k := titleKey(o)
				if opts[k] {
					issues = append(issues, QualityIssue{pos, fmt.Sprintf("duplicate option %q", o)})
					break
				}
				opts[k] = true
			}
			if card.AnswerIndex >= 0 && card.AnswerIndex < len(card.Options) {
				answer := titleKey(card.Options[card.AnswerIndex])
				if answer != "" && strings.Contains(titleKey(card.CardTitle()), answer) {
					issues = append(issues, QualityIssue{pos, "title reveals the correct option"})
				}
			}
		}
	}
	return issues
}

func titleKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
