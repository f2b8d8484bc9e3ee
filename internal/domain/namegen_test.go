package domain

import (
	"errors"
	"math/rand/v2"
	"regexp"
	"testing"
)

func fixedRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func TestGenerate(t *testing.T) {
	animalRe := regexp.MustCompile(`^[a-z]+-[a-z]+$`)
	sixRe := regexp.MustCompile(`^[a-z0-9]{6}$`)

	tests := []struct {
		name    string
		desired string
		taken   func(string) bool
		check   func(t *testing.T, got string)
		wantErr error
	}{
		{
			name:    "free desired name is returned unchanged",
			desired: "potatoname",
			taken:   func(string) bool { return false },
			check: func(t *testing.T, got string) {
				if got != "potatoname" {
					t.Errorf("Generate() = %q, want potatoname", got)
				}
			},
		},
		{
			name:    "taken desired name falls back to animal",
			desired: "potatoname",
			taken:   func(n string) bool { return n == "potatoname" },
			check: func(t *testing.T, got string) {
				if !animalRe.MatchString(got) {
					t.Errorf("Generate() = %q, want adjective-animal", got)
				}
			},
		},
		{
			name:  "no desired name gives animal",
			taken: func(string) bool { return false },
			check: func(t *testing.T, got string) {
				if !animalRe.MatchString(got) {
					t.Errorf("Generate() = %q, want adjective-animal", got)
				}
			},
		},
		{
			name:  "all animals taken falls back to six chars",
			taken: func(n string) bool { return animalRe.MatchString(n) },
			check: func(t *testing.T, got string) {
				if !sixRe.MatchString(got) {
					t.Errorf("Generate() = %q, want six char token", got)
				}
			},
		},
		{
			name:    "everything taken is exhausted",
			taken:   func(string) bool { return true },
			wantErr: ErrNameExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NameGenerator{Rand: fixedRand()}
			got, err := g.Generate(tt.desired, func(n string) (bool, error) { return tt.taken(n), nil })
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate() unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestGenerateBoundedAttempts(t *testing.T) {
	calls := 0
	g := NameGenerator{Rand: fixedRand()}
	_, err := g.Generate("wanted", func(string) (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, ErrNameExhausted) {
		t.Fatalf("expected ErrNameExhausted, got %v", err)
	}
	if want := 1 + AnimalAttempts + SixCharAttempts; calls != want {
		t.Errorf("exists called %d times, want %d", calls, want)
	}
}

func TestGeneratePropagatesExistsError(t *testing.T) {
	boom := errors.New("boom")
	g := NameGenerator{Rand: fixedRand()}
	_, err := g.Generate("", func(string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped exists error, got %v", err)
	}
}

func TestPreviewNameDeterministic(t *testing.T) {
	doc := Document{
		Services: []ServiceSpec{{Name: "frontend", Location: "http://example.com"}},
		Domains:  []DomainSpec{{Domain: "example.com", DefaultService: "frontend"}},
	}
	a := PreviewName(doc)
	doc.SessionToken = "ignored"
	doc.DesiredName = "ignored"
	b := PreviewName(doc)
	if a != b {
		t.Errorf("PreviewName() not stable: %q vs %q", a, b)
	}
	if !regexp.MustCompile(`^[a-z0-9]{6}$`).MatchString(a) {
		t.Errorf("PreviewName() = %q, want six char token", a)
	}

	doc.Services[0].Location = "http://other.example.com"
	if c := PreviewName(doc); c == a {
		t.Errorf("PreviewName() should change with content, got %q twice", c)
	}
}
