package domain

import "time"

// Score values awarded per submission.
const (
	ScoreFull    = 10
	ScorePartial = 7
	ScoreNone    = 0
)

// Submission is one graded attempt. It is written exactly once and never
// mutated afterwards.
type Submission struct {
	ID                string    `json:"id"`
	UserID            string    `json:"usuario_id"`
	ProblemID         int       `json:"problema_id"`
	Answer            string    `json:"resposta"`
	ComplexityClaim   string    `json:"complexidade,omitempty"`
	CodeCorrect       bool      `json:"correta"`
	ComplexityCorrect *bool     `json:"complexidade_correta,omitempty"`
	Score             int       `json:"nota"`
	CreatedAt         time.Time `json:"criado_em"`
}

// ScoreFor maps a verdict onto the submission score: 10 for correct code
// with correct complexity, 7 for correct code otherwise, 0 for incorrect code.
func ScoreFor(v Verdict) int {
	if !v.CodeCorrect {
		return ScoreNone
	}
	if v.ComplexityCorrect != nil && *v.ComplexityCorrect {
		return ScoreFull
	}
	return ScorePartial
}
