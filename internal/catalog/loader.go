// Package catalog loads the problem catalog from flat files.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// problemFile is the on-disk shape of one problem.
type problemFile struct {
	ID          int      `json:"id" yaml:"id" validate:"gt=0"`
	Title       string   `json:"titulo" yaml:"titulo" validate:"required"`
	Description string   `json:"descricao" yaml:"descricao" validate:"required"`
	Difficulty  string   `json:"dificuldade" yaml:"dificuldade" validate:"required"`
	Categories  []string `json:"categoria" yaml:"categoria"`
}

// Loader reads problems from a JSON or YAML file, or from every such file
// in a directory.
type Loader struct {
	path     string
	validate *validator.Validate
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	return &Loader{path: path, validate: validator.New()}
}

// Path returns the catalog location.
func (l *Loader) Path() string {
	return l.path
}

// Load reads every problem. IDs must be unique across files.
func (l *Loader) Load() ([]domain.Problem, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	files := []string{l.path}
	if info.IsDir() {
		files, err = catalogFiles(l.path)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[int]string)
	var problems []domain.Problem
	for _, f := range files {
		loaded, err := l.loadFile(f)
		if err != nil {
			return nil, err
		}
		for _, p := range loaded {
			if prev, dup := seen[p.ID]; dup {
				return nil, fmt.Errorf("duplicate problem id %d in %s (first seen in %s)", p.ID, f, prev)
			}
			seen[p.ID] = f
			problems = append(problems, p)
		}
	}

	sort.Slice(problems, func(i, j int) bool { return problems[i].ID < problems[j].ID })
	return problems, nil
}

func (l *Loader) loadFile(path string) ([]domain.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var raw []problemFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}

	problems := make([]domain.Problem, 0, len(raw))
	for i, pf := range raw {
		if err := l.validate.Struct(pf); err != nil {
			return nil, fmt.Errorf("%s: problem #%d: %w", path, i, err)
		}
		difficulty, ok := domain.ParseDifficulty(pf.Difficulty)
		if !ok {
			return nil, fmt.Errorf("%s: problem %d: unknown difficulty %q", path, pf.ID, pf.Difficulty)
		}
		categories := pf.Categories
		if categories == nil {
			categories = []string{}
		}
		problems = append(problems, domain.Problem{
			ID:          pf.ID,
			Title:       pf.Title,
			Description: pf.Description,
			Difficulty:  difficulty,
			Categories:  categories,
		})
	}
	return problems, nil
}

func catalogFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
