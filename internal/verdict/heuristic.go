package verdict

import (
	"errors"
	"strings"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

// Marker phrases searched for, lowercased.
const (
	CodeMarker       = "veredito do código: correto"
	ComplexityMarker = "veredito da complexidade: correta"
)

var errBlank = errors.New("empty response")

// Heuristic matches fixed marker phrases case-insensitively. A missing
// marker means false; there is no fuzzy matching.
type Heuristic struct{}

// Mode implements Interpreter.
func (Heuristic) Mode() Mode { return ModeHeuristic }

// Interpret implements Interpreter.
func (Heuristic) Interpret(raw string) (*domain.Verdict, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, parseError(ModeHeuristic, raw, errBlank)
	}

	text := strings.ToLower(raw)
	return &domain.Verdict{
		CodeCorrect:       strings.Contains(text, CodeMarker),
		ComplexityCorrect: domain.Bool(strings.Contains(text, ComplexityMarker)),
		Rationale:         strings.TrimSpace(raw),
	}, nil
}
