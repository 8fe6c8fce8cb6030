// Package scoring turns a quiz definition plus a final answer set into a
// deterministic score with a per-question breakdown and a feedback tier.
package scoring

import "math"

// Q is the minimal view of a question needed for scoring. The quiz service
// maps its own question type onto this.
type Q struct {
	ID            string
	Prompt        string
	CorrectAnswer string
	Explanation   string
	Points        float64
}

// QuestionResult is the post-submission view of one question. CorrectAnswer
// and Explanation are only ever exposed through this struct, never through a
// pre-submission quiz view.
type QuestionResult struct {
	QuestionID     string  `json:"question_id"`
	Prompt         string  `json:"prompt"`
	Selected       string  `json:"selected,omitempty"`
	Correct        bool    `json:"correct"`
	PointsEarned   float64 `json:"points_earned"`
	PointsPossible float64 `json:"points_possible"`
	CorrectAnswer  string  `json:"correct_answer"`
	Explanation    string  `json:"explanation,omitempty"`
}

type Summary struct {
	FinalScore       float64          `json:"final_score"`
	MaxPossibleScore float64          `json:"max_possible_score"`
	ScorePercent     float64          `json:"score_percent"`
	Tier             string           `json:"tier"`
	Feedback         string           `json:"feedback"`
	Breakdown        []QuestionResult `json:"breakdown"`
}

// Score grades answers against the pinned question set. A missing or empty
// answer is always incorrect; correctness is exact value equality; a correct
// answer earns the question's full point weight, otherwise zero.
func Score(questions []Q, answers map[string]string) Summary {
	s := Summary{Breakdown: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		selected := answers[q.ID]
		qr := QuestionResult{
			QuestionID:     q.ID,
			Prompt:         q.Prompt,
			Selected:       selected,
			PointsPossible: q.Points,
			CorrectAnswer:  q.CorrectAnswer,
			Explanation:    q.Explanation,
		}
		if selected != "" && selected == q.CorrectAnswer {
			qr.Correct = true
			qr.PointsEarned = q.Points
		}
		s.FinalScore += qr.PointsEarned
		s.MaxPossibleScore += qr.PointsPossible
		s.Breakdown = append(s.Breakdown, qr)
	}
	s.ScorePercent = Percentage(s.FinalScore, s.MaxPossibleScore)
	s.Tier, s.Feedback = Tier(s.ScorePercent)
	return s
}

// Percentage is score/max*100 rounded half-up to 2 decimal places, 0 when
// max is 0.
func Percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Floor(score/max*100*100+0.5) / 100
}

// Performance tiers by percentage, highest threshold first.
const (
	TierExcellent        = "Excellent"
	TierVeryGood         = "Very Good"
	TierGood             = "Good"
	TierSatisfactory     = "Satisfactory"
	TierPass             = "Pass"
	TierNeedsImprovement = "Needs Improvement"
)

var tiers = []struct {
	min      float64
	name     string
	feedback string
}{
	{90, TierExcellent, "Outstanding work. You have mastered this material."},
	{80, TierVeryGood, "Very good result. A quick review of the missed questions will close the gap."},
	{70, TierGood, "Good result. Revisit the questions you missed before moving on."},
	{60, TierSatisfactory, "Satisfactory. Spend some more time with this material."},
	{50, TierPass, "You passed, but this topic needs more practice."},
}

func Tier(percent float64) (name, feedback string) {
	for _, t := range tiers {
		if percent >= t.min {
			return t.name, t.feedback
		}
	}
	return TierNeedsImprovement, "Keep practicing. Review the material and try the exercises again."
}
