package domain

import (
	"encoding/json"
	"time"
)

// XPPerLevel is the amount of experience separating two levels.
const XPPerLevel = 100

// UserProgress is the per-user progression record. XP and Score are only
// ever changed through additive increments.
type UserProgress struct {
	ID        string    `json:"id"`
	XP        int       `json:"xp"`
	Score     int       `json:"pontuacao"`
	CreatedAt time.Time `json:"criado_em"`
}

// Level derives the user's level from accumulated XP.
func (u *UserProgress) Level() int {
	return LevelForXP(u.XP)
}

// LevelForXP returns the level reached with xp experience points.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + xp/XPPerLevel
}

// AnswerStats counts a user's correct and incorrect submissions.
type AnswerStats struct {
	Correct   int `json:"acertos"`
	Incorrect int `json:"erros"`
}

// XPPoint is one sample of a user's XP total over time.
type XPPoint struct {
	XP        int       `json:"xp"`
	CreatedAt time.Time `json:"criado_em"`
}

// MarshalJSON includes the derived level as "nivel".
func (u UserProgress) MarshalJSON() ([]byte, error) {
	type progress UserProgress
	return json.Marshal(struct {
		progress
		Level int `json:"nivel"`
	}{progress: progress(u), Level: u.Level()})
}
