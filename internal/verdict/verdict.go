// Package verdict turns reasoning-service text into structured judgments.
//
// Three strategies share the Interpreter interface: a fixed marker-phrase
// heuristic, an embedded-JSON extractor and a strict schema decoder. Every
// strategy fails with a *domain.ParseError carrying the raw text when it
// cannot produce a result; callers substitute a user-visible fallback.
package verdict

import (
	"fmt"

	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Mode tags an interpretation strategy.
type Mode string

const (
	ModeHeuristic    Mode = "heuristic"
	ModeEmbeddedJSON Mode = "embedded_json"
	ModeStrict       Mode = "strict"
)

// Interpreter extracts a verdict from upstream text.
type Interpreter interface {
	Mode() Mode
	Interpret(raw string) (*domain.Verdict, error)
}

// New returns the Interpreter for a review mode. legacyFallback only
// affects the strict mode. The embedded-JSON strategy extracts reveal
// solutions and carries no correctness verdict, so it is not a review mode.
func New(mode Mode, legacyFallback bool) (Interpreter, error) {
	switch mode {
	case ModeHeuristic, "":
		return Heuristic{}, nil
	case ModeStrict:
		return NewStrict(legacyFallback), nil
	case ModeEmbeddedJSON:
		return nil, fmt.Errorf("verdict mode %q cannot grade reviews", mode)
	default:
		return nil, fmt.Errorf("unknown verdict mode %q", mode)
	}
}

var validate = validator.New()

func parseError(mode Mode, raw string, err error) error {
	return &domain.ParseError{Mode: string(mode), Raw: raw, Err: err}
}
