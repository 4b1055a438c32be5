package domain

// Verdict is the structured judgment extracted from reasoning-service text.
// It is transient: the ledger turns it into a Submission and an XP delta.
type Verdict struct {
	CodeCorrect bool
	// ComplexityCorrect is nil when the response carried no complexity verdict.
	ComplexityCorrect *bool
	Rationale         string
	// SolutionCode is only set by the reveal flow.
	SolutionCode *string
}

// ComplexityOK reports whether the complexity verdict is present and positive.
func (v Verdict) ComplexityOK() bool {
	return v.ComplexityCorrect != nil && *v.ComplexityCorrect
}

// Solution is the reveal-flow payload: an analysis of the learner's attempt
// plus the reference solution.
type Solution struct {
	Analysis string `json:"analise" validate:"required"`
	Code     string `json:"solucao_codigo" validate:"required"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
