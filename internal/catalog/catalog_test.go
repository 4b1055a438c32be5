package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/benjudge/internal/domain"
)

func TestLoader_LoadJSON(t *testing.T) {
	problems, err := NewLoader("testdata/problemas.json").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(problems) != 2 {
		t.Fatalf("Load() len = %d; want 2", len(problems))
	}
	if problems[0].Title != "Troco mínimo" || problems[0].Difficulty != domain.DifficultyEasy {
		t.Errorf("problems[0] = %+v", problems[0])
	}
	if !problems[1].HasCategory("dy") {
		t.Errorf("problems[1].Categories = %v; want dy", problems[1].Categories)
	}
}

func TestLoader_LoadDirectory(t *testing.T) {
	problems, err := NewLoader("testdata/dir").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(problems) != 4 {
		t.Fatalf("Load() len = %d; want 4", len(problems))
	}
	for i, p := range problems {
		if p.ID != i+1 {
			t.Errorf("problems[%d].ID = %d; want %d", i, p.ID, i+1)
		}
	}
	if problems[2].Difficulty != domain.DifficultyHard {
		t.Errorf("Difficulty = %q; want hard (from \"difícil\")", problems[2].Difficulty)
	}
	if problems[3].Difficulty != domain.DifficultyExam {
		t.Errorf("Difficulty = %q; want exam (from \"prova\")", problems[3].Difficulty)
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing", "testdata/nope.json"},
		{"duplicate ids", "testdata/duplicate.yaml"},
		{"invalid problem", "testdata/invalid.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(tt.path).Load(); err == nil {
				t.Error("Load() error = nil; want error")
			}
		})
	}
}

func TestLoader_UnknownDifficulty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	os.WriteFile(path, []byte(`[{"id":1,"titulo":"t","descricao":"d","dificuldade":"insano"}]`), 0o644)

	if _, err := NewLoader(path).Load(); err == nil {
		t.Error("Load() error = nil; want unknown difficulty error")
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(NewLoader("testdata/problemas.json"))
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p, err := r.Get(2)
	if err != nil {
		t.Fatalf("Get(2) error = %v", err)
	}
	if p.Title != "Mochila 0/1" {
		t.Errorf("Title = %q", p.Title)
	}

	if _, err := r.Get(99); !errors.Is(err, domain.ErrProblemNotFound) {
		t.Errorf("Get(99) error = %v; want ErrProblemNotFound", err)
	}
}

func TestRegistry_LoadFailureKeepsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.json")
	os.WriteFile(path, []byte(`[{"id":7,"titulo":"t","descricao":"d","dificuldade":"easy"}]`), 0o644)

	r := NewRegistry(NewLoader(path))
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	os.WriteFile(path, []byte(`not json`), 0o644)
	if err := r.Load(); err == nil {
		t.Fatal("Load() error = nil; want parse error")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d; want 1", r.Count())
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry(NewLoader("testdata/dir"))
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"all", Filter{}, []int{1, 2, 3, 4}},
		{"by category", Filter{Category: "dy"}, []int{2, 4}},
		{"by difficulty", Filter{Difficulty: domain.DifficultyHard}, []int{3}},
		{"both", Filter{Difficulty: domain.DifficultyMedium, Category: "dy"}, []int{2}},
		{"no match", Filter{Category: "grafos"}, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.List(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("List() len = %d; want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("List()[%d].ID = %d; want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFromProblems(t *testing.T) {
	r := FromProblems([]domain.Problem{{ID: 5, Title: "x"}})
	if _, err := r.Get(5); err != nil {
		t.Errorf("Get(5) error = %v", err)
	}
	if err := r.Load(); err != nil {
		t.Errorf("Load() without loader error = %v", err)
	}
}
