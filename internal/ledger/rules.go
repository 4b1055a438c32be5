package ledger

import "github.com/felixgeelhaar/benjudge/internal/domain"

// Rules is the XP rule table.
type Rules struct {
	CorrectXP           int `yaml:"correct_xp"`
	ComplexityBonusXP   int `yaml:"complexity_bonus_xp"`
	ConsolationXP       int `yaml:"consolation_xp"`
	FirstSuccessBonusXP int `yaml:"first_success_bonus_xp"`
	ScoreIncrement      int `yaml:"score_increment"`
}

// DefaultRules returns the standard XP table.
func DefaultRules() Rules {
	return Rules{
		CorrectXP:           50,
		ComplexityBonusXP:   20,
		ConsolationXP:       10,
		FirstSuccessBonusXP: 30,
		ScoreIncrement:      1,
	}
}

// BaseXP returns the XP earned by a verdict before any first-success bonus.
func (r Rules) BaseXP(v domain.Verdict) int {
	if !v.CodeCorrect {
		return r.ConsolationXP
	}
	xp := r.CorrectXP
	if v.ComplexityOK() {
		xp += r.ComplexityBonusXP
	}
	return xp
}

// XPFor returns the total XP for a verdict given how many submissions the
// user had already made for the problem.
func (r Rules) XPFor(v domain.Verdict, priorAttempts int) int {
	xp := r.BaseXP(v)
	if priorAttempts == 0 && v.CodeCorrect {
		xp += r.FirstSuccessBonusXP
	}
	return xp
}
