package domain

import "strings"

// Problem is a catalog entry. Problems are immutable once the catalog is loaded.
type Problem struct {
	ID          int        `json:"id" yaml:"id"`
	Title       string     `json:"titulo" yaml:"titulo"`
	Description string     `json:"descricao" yaml:"descricao"`
	Difficulty  Difficulty `json:"dificuldade" yaml:"dificuldade"`
	Categories  []string   `json:"categoria" yaml:"categoria"`
}

// Difficulty represents problem difficulty
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExam   Difficulty = "exam"
)

// ParseDifficulty maps catalog spellings onto a Difficulty. The flat-file
// catalog is written in Portuguese, so both vocabularies are accepted.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "facil", "fácil":
		return DifficultyEasy, true
	case "medium", "medio", "médio":
		return DifficultyMedium, true
	case "hard", "dificil", "difícil":
		return DifficultyHard, true
	case "exam", "prova":
		return DifficultyExam, true
	default:
		return "", false
	}
}

// Valid reports whether d is one of the known difficulties
func (d Difficulty) Valid() bool {
	_, ok := ParseDifficulty(string(d))
	return ok
}

// HasCategory reports whether the problem is tagged with category
func (p *Problem) HasCategory(category string) bool {
	for _, c := range p.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}
