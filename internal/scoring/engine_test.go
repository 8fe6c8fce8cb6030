package scoring_test

import (
	"testing"

	"github.com/classpulse/classpulse-backend/internal/scoring"
)

func twoQuestionQuiz() []scoring.Q {
	return []scoring.Q{
		{ID: "q1", Prompt: "What is 2+2?", CorrectAnswer: "4", Explanation: "basic addition", Points: 3},
		{ID: "q2", Prompt: "Capital of France?", CorrectAnswer: "Paris", Points: 2},
	}
}

func TestScore_PartialCredit(t *testing.T) {
	sum := scoring.Score(twoQuestionQuiz(), map[string]string{"q1": "4", "q2": "London"})

	if sum.FinalScore != 3 {
		t.Fatalf("final score = %v, want 3", sum.FinalScore)
	}
	if sum.MaxPossibleScore != 5 {
		t.Fatalf("max score = %v, want 5", sum.MaxPossibleScore)
	}
	if sum.ScorePercent != 60.00 {
		t.Fatalf("percent = %v, want 60.00", sum.ScorePercent)
	}
	if sum.Tier != scoring.TierSatisfactory {
		t.Fatalf("tier = %q, want %q", sum.Tier, scoring.TierSatisfactory)
	}

	if len(sum.Breakdown) != 2 {
		t.Fatalf("breakdown has %d entries, want 2", len(sum.Breakdown))
	}
	q1 := sum.Breakdown[0]
	if !q1.Correct || q1.PointsEarned != 3 || q1.CorrectAnswer != "4" {
		t.Errorf("q1 breakdown = %+v", q1)
	}
	q2 := sum.Breakdown[1]
	if q2.Correct || q2.PointsEarned != 0 || q2.Selected != "London" {
		t.Errorf("q2 breakdown = %+v", q2)
	}
}

func TestScore_MissingOrEmptyAnswerIsIncorrect(t *testing.T) {
	// q2 omitted entirely, q1 present but empty; neither may earn points even
	// if a question's correct answer were the empty string.
	questions := append(twoQuestionQuiz(), scoring.Q{ID: "q3", Prompt: "trick", CorrectAnswer: "", Points: 4})
	sum := scoring.Score(questions, map[string]string{"q1": ""})

	if sum.FinalScore != 0 {
		t.Fatalf("final score = %v, want 0", sum.FinalScore)
	}
	if sum.MaxPossibleScore != 9 {
		t.Fatalf("max score = %v, want 9", sum.MaxPossibleScore)
	}
	for _, qr := range sum.Breakdown {
		if qr.Correct {
			t.Errorf("question %s marked correct with no answer", qr.QuestionID)
		}
	}
}

func TestPercentage_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		score, max float64
		want       float64
	}{
		{3, 5, 60},
		{2, 3, 66.67},
		{1, 3, 33.33},
		{1, 160, 0.63}, // 0.625 rounds up
		{1, 8, 12.5},
		{5, 5, 100},
		{0, 5, 0},
		{3, 0, 0}, // no scorable points
	}
	for _, c := range cases {
		got := scoring.Percentage(c.score, c.max)
		if got != c.want {
			t.Errorf("Percentage(%v, %v) = %v, want %v", c.score, c.max, got, c.want)
		}
		if got < 0 || got > 100 {
			t.Errorf("Percentage(%v, %v) = %v out of [0,100]", c.score, c.max, got)
		}
	}
}

func TestTier_Thresholds(t *testing.T) {
	cases := []struct {
		percent float64
		want    string
	}{
		{100, scoring.TierExcellent},
		{90, scoring.TierExcellent},
		{89.99, scoring.TierVeryGood},
		{80, scoring.TierVeryGood},
		{70, scoring.TierGood},
		{60, scoring.TierSatisfactory},
		{50, scoring.TierPass},
		{49.99, scoring.TierNeedsImprovement},
		{0, scoring.TierNeedsImprovement},
	}
	for _, c := range cases {
		name, feedback := scoring.Tier(c.percent)
		if name != c.want {
			t.Errorf("Tier(%v) = %q, want %q", c.percent, name, c.want)
		}
		if feedback == "" {
			t.Errorf("Tier(%v) returned empty feedback", c.percent)
		}
	}
}
