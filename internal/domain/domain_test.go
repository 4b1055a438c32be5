package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestScoreFor(t *testing.T) {
	tests := []struct {
		name string
		v    Verdict
		want int
	}{
		{"correct with correct complexity", Verdict{CodeCorrect: true, ComplexityCorrect: Bool(true)}, ScoreFull},
		{"correct with wrong complexity", Verdict{CodeCorrect: true, ComplexityCorrect: Bool(false)}, ScorePartial},
		{"correct without complexity verdict", Verdict{CodeCorrect: true}, ScorePartial},
		{"incorrect with correct complexity", Verdict{ComplexityCorrect: Bool(true)}, ScoreNone},
		{"incorrect", Verdict{}, ScoreNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreFor(tt.v); got != tt.want {
				t.Errorf("ScoreFor() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp, want int
	}{
		{-5, 1}, {0, 1}, {99, 1}, {100, 2}, {250, 3},
	}
	for _, tt := range tests {
		if got := LevelForXP(tt.xp); got != tt.want {
			t.Errorf("LevelForXP(%d) = %d; want %d", tt.xp, got, tt.want)
		}
	}
}

func TestUserProgress_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(UserProgress{ID: "u1", XP: 130, Score: 2})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["nivel"] != float64(2) || got["pontuacao"] != float64(2) || got["xp"] != float64(130) {
		t.Errorf("MarshalJSON() = %s", data)
	}
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
		ok   bool
	}{
		{"easy", DifficultyEasy, true},
		{" Fácil ", DifficultyEasy, true},
		{"médio", DifficultyMedium, true},
		{"DIFICIL", DifficultyHard, true},
		{"prova", DifficultyExam, true},
		{"impossível", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDifficulty(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDifficulty(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestProblem_HasCategory(t *testing.T) {
	p := Problem{Categories: []string{"Grafos", "dfs"}}
	if !p.HasCategory("grafos") {
		t.Error("HasCategory(grafos) = false; want case-insensitive match")
	}
	if p.HasCategory("pilhas") {
		t.Error("HasCategory(pilhas) = true")
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	up := fmt.Errorf("chat: %w", &UpstreamError{Provider: "gemini", Err: cause})
	parse := fmt.Errorf("review: %w", &ParseError{Mode: "strict", Raw: "???", Err: cause})
	persist := fmt.Errorf("ledger: %w", &PersistenceError{Op: "insert submission", Err: ErrUserNotFound})

	if !IsUpstreamError(up) || IsUpstreamError(parse) {
		t.Error("IsUpstreamError misclassified")
	}
	if !IsParseError(parse) || IsParseError(persist) {
		t.Error("IsParseError misclassified")
	}
	if !IsPersistenceError(persist) || !errors.Is(persist, ErrUserNotFound) {
		t.Error("PersistenceError must unwrap to its cause")
	}
	if !errors.Is(up, cause) {
		t.Error("UpstreamError must unwrap to its cause")
	}
}
