package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

var errNotObject = errors.New("response is not a single JSON object")

// strictPayload is the schema the reviewer is asked to answer with.
type strictPayload struct {
	CodeCorrect       *bool  `json:"codigo_correto" validate:"required"`
	ComplexityCorrect *bool  `json:"complexidade_correta"`
	Rationale         string `json:"justificativa" validate:"required"`
}

// Strict decodes a schema-conforming JSON verdict. The whole response, after
// an optional markdown fence, must be the object; prose around it is
// rejected. When Fallback is set, text that does not conform is handed to the
// heuristic interpreter instead of failing.
type Strict struct {
	Fallback bool
}

// NewStrict returns a strict interpreter.
func NewStrict(fallback bool) Strict {
	return Strict{Fallback: fallback}
}

// Mode implements Interpreter.
func (Strict) Mode() Mode { return ModeStrict }

// Interpret implements Interpreter.
func (s Strict) Interpret(raw string) (*domain.Verdict, error) {
	var p strictPayload
	if err := decodeWhole(raw, &p); err != nil {
		if s.Fallback {
			return Heuristic{}.Interpret(raw)
		}
		return nil, err
	}

	return &domain.Verdict{
		CodeCorrect:       *p.CodeCorrect,
		ComplexityCorrect: p.ComplexityCorrect,
		Rationale:         p.Rationale,
	}, nil
}

func decodeWhole(raw string, p *strictPayload) error {
	body := stripFences(raw)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return parseError(ModeStrict, raw, errNotObject)
	}
	if err := json.Unmarshal([]byte(body), p); err != nil {
		return parseError(ModeStrict, raw, fmt.Errorf("decode object: %w", err))
	}
	if err := validate.Struct(p); err != nil {
		return parseError(ModeStrict, raw, fmt.Errorf("validate object: %w", err))
	}
	return nil
}
