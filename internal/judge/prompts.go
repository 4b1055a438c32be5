package judge

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/felixgeelhaar/benjudge/internal/verdict"
)

var helpTemplate = template.Must(template.New("help").Parse(`Você é um assistente de programação prestativo e didático.
Sua função é APENAS ajudar o usuário a entender o problema e a pensar na solução, sem dar a resposta direta.
NÃO forneça código ou a solução completa. Mantenha as respostas focadas no conceito e na lógica.
Seja o mais breve e direto possível, com no máximo 50 palavras.

PROBLEMA:
{{.Problem.Description}}

PERGUNTA DO USUÁRIO:
{{.Question}}
`))

var reviewTemplate = template.Must(template.New("review").Parse(`Você é um corretor de provas de algoritmos.
NÃO forneça código, NÃO forneça solução completa e NÃO mostre como resolver passo a passo.

Avalie a resposta do aluno.
{{- if .Strict}}
Retorne EXATAMENTE UM objeto JSON, sem texto antes ou depois, com as chaves:
- "codigo_correto": true ou false
- "complexidade_correta": true, false ou null se o aluno não informou a complexidade
- "justificativa": pequena justificativa (sem ensinar) seguida de uma dica curta (sem dar a solução)
{{- else}}
Retorne EXATAMENTE:
- Uma linha "Veredito do Código: Correto" ou "Veredito do Código: Incorreto"
- Uma linha "Veredito da Complexidade: Correta" ou "Veredito da Complexidade: Incorreta"
- Nota de 0 a 10
- Pequena justificativa (sem ensinar)
- Uma dica curta (sem dar a solução)
{{- end}}

PROBLEMA:
{{.ProblemJSON}}

RESPOSTA DO ALUNO:
{{.Answer}}
{{- if .Complexity}}

COMPLEXIDADE INFORMADA PELO ALUNO:
{{.Complexity}}
{{- end}}
`))

var revealTemplate = template.Must(template.New("reveal").Parse(`Você é um tutor de programação. Sua tarefa é fornecer a solução ideal para o problema e, em seguida, comparar essa solução com o código submetido pelo aluno.

Para garantir o processamento correto, você deve retornar a resposta no formato JSON.
Retorne EXATAMENTE UM objeto JSON com duas chaves:
1. "analise": Explicação concisa (máximo 150 palavras) do que faltou no código do aluno, focada em lógica e conceitos.
2. "solucao_codigo": A solução ideal completa do problema. Use o código em JavaScript ou Python.

NÃO retorne nenhum texto antes ou depois do objeto JSON.

PROBLEMA:
{{.ProblemJSON}}

CÓDIGO ATUAL DO ALUNO:
{{if .Answer}}{{.Answer}}{{else}}O aluno ainda não tentou submeter um código.{{end}}
`))

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	// The templates are static and only reference fields that exist.
	_ = t.Execute(&buf, data)
	return buf.String()
}

func problemJSON(p *domain.Problem) string {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return p.Description
	}
	return string(b)
}

// HelpPrompt renders the chat prompt.
func HelpPrompt(p *domain.Problem, question string) string {
	return render(helpTemplate, struct {
		Problem  *domain.Problem
		Question string
	}{p, question})
}

// ReviewPrompt renders the reviewer prompt for the given verdict mode.
func ReviewPrompt(p *domain.Problem, answer, complexity string, mode verdict.Mode) string {
	return render(reviewTemplate, struct {
		ProblemJSON, Answer, Complexity string
		Strict                          bool
	}{problemJSON(p), answer, strings.TrimSpace(complexity), mode == verdict.ModeStrict})
}

// RevealPrompt renders the solution prompt.
func RevealPrompt(p *domain.Problem, answer string) string {
	return render(revealTemplate, struct {
		ProblemJSON, Answer string
	}{problemJSON(p), strings.TrimSpace(answer)})
}
