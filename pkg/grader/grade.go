package grader

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/chazu/cadgrade/pkg/engine"
	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/samber/lo"
)

// Choice is one selected quiz option. Keys and answers may be written as
// JSON strings or numbers.
type Choice string

// UnmarshalJSON accepts a string or a number.
func (c *Choice) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Choice(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("grader: quiz choice must be a string or a number: %s", b)
	}
	*c = Choice(n.String())
	return nil
}

// Question is a multiple-choice question. Answers is the key; a question
// with an empty key cannot be answered correctly but still counts.
type Question struct {
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
	Answers  []Choice `json:"answers"`
}

// Answers maps a question index, as a decimal string, to the selected
// choices.
type Answers map[string][]Choice

// QuizResult is the scored quiz.
type QuizResult struct {
	Score   float64 `json:"score"`
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
}

// QuizScore awards points in proportion to the questions whose selected
// set equals the key exactly. The score is rounded to 2 decimals.
func QuizScore(questions []Question, answers Answers, points float64) QuizResult {
	res := QuizResult{Total: len(questions)}
	if len(questions) == 0 {
		return res
	}
	for i, q := range questions {
		if len(q.Answers) == 0 {
			continue
		}
		if sameSet(q.Answers, answers[strconv.Itoa(i)]) {
			res.Correct++
		}
	}
	res.Score = invariant.Round(points*float64(res.Correct)/float64(res.Total), 2)
	return res
}

func sameSet(a, b []Choice) bool {
	sa, sb := lo.Uniq(a), lo.Uniq(b)
	if len(sa) != len(sb) {
		return false
	}
	return lo.Every(sa, sb)
}

// Grade is a comparison folded with a quiz into a final mark.
type Grade struct {
	CAD      float64    `json:"cad"`
	Quiz     QuizResult `json:"quiz"`
	Total    float64    `json:"total"`
	Passed   bool       `json:"passed"`
	Feedback string     `json:"feedback"`
}

// Folder folds outcomes into grades with a policy formula. The formula is
// evaluated by the engine with the variables cad (the comparison score on
// a 0-100 scale, 0 for failures), quiz (the quiz points) and success (1 or
// 0).
type Folder struct {
	engine   *engine.Engine
	policy   string
	passMark float64
}

// NewFolder returns a Folder. A nil engine gets a default one.
func NewFolder(e *engine.Engine, policy string, passMark float64) *Folder {
	if e == nil {
		e = engine.NewEngine()
	}
	return &Folder{engine: e, policy: policy, passMark: passMark}
}

// Fold applies the policy to a comparison outcome and a quiz result. The
// total is rounded to 2 decimals.
func (f *Folder) Fold(out Outcome, quiz QuizResult) (Grade, error) {
	cad, _ := out.Score()
	success := 0.0
	if out.Success() {
		success = 1
	}
	total, err := f.engine.EvaluatePolicy(f.policy, map[string]float64{
		"cad":     cad,
		"quiz":    quiz.Score,
		"success": success,
	})
	if err != nil {
		return Grade{}, fmt.Errorf("grader: grading policy: %w", err)
	}
	total = invariant.Round(total, 2)

	g := Grade{
		CAD:    invariant.Round(total-quiz.Score, 2),
		Quiz:   quiz,
		Total:  total,
		Passed: total >= f.passMark,
	}
	g.Feedback = fmt.Sprintf("CAD: %g, quiz: %g (%d/%d correct), total: %g",
		g.CAD, quiz.Score, quiz.Correct, quiz.Total, total)
	if out.Failure != nil {
		g.Feedback += fmt.Sprintf(" [%s: %s]", out.Failure.Error, out.Failure.Message)
	}
	return g, nil
}
