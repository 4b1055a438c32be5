package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

// objectSpan matches from the first '{' to the last '}' in the text. It is
// not nesting-aware.
var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

var errNoObject = errors.New("no JSON object in response")

// EmbeddedJSON extracts a single JSON object embedded in free text.
type EmbeddedJSON struct{}

// NewEmbeddedJSON returns the embedded-JSON interpreter.
func NewEmbeddedJSON() EmbeddedJSON { return EmbeddedJSON{} }

// Mode implements Interpreter.
func (EmbeddedJSON) Mode() Mode { return ModeEmbeddedJSON }

// ExtractSolution decodes the {analise, solucao_codigo} object embedded in raw.
func (EmbeddedJSON) ExtractSolution(raw string) (*domain.Solution, error) {
	var sol domain.Solution
	if err := decodeEmbedded(ModeEmbeddedJSON, raw, &sol); err != nil {
		return nil, err
	}
	return &sol, nil
}

// Interpret implements Interpreter. A well-formed solution object has no
// correctness verdict, so CodeCorrect is false and SolutionCode is set.
func (e EmbeddedJSON) Interpret(raw string) (*domain.Verdict, error) {
	sol, err := e.ExtractSolution(raw)
	if err != nil {
		return nil, err
	}
	code := sol.Code
	return &domain.Verdict{
		Rationale:    sol.Analysis,
		SolutionCode: &code,
	}, nil
}

// decodeEmbedded locates the object span in raw, decodes it into v and
// validates the result.
func decodeEmbedded(mode Mode, raw string, v any) error {
	span := objectSpan.FindString(raw)
	if span == "" {
		return parseError(mode, raw, errNoObject)
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return parseError(mode, raw, fmt.Errorf("decode object: %w", err))
	}
	if err := validate.Struct(v); err != nil {
		return parseError(mode, raw, fmt.Errorf("validate object: %w", err))
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
