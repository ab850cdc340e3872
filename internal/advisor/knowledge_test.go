package advisor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseKnowledge(t *testing.T) {
	kb := ParseKnowledge("first passage\n\n\n\nsecond\r\npassage\r\n\r\n   \n\nthird")
	if kb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", kb.Len())
	}
	if DefaultKnowledge().Len() < 5 {
		t.Errorf("DefaultKnowledge().Len() = %d, want at least 5", DefaultKnowledge().Len())
	}
}

func TestRetrieve(t *testing.T) {
	kb := DefaultKnowledge()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "colored hair",
			query: `Hair characteristics: {"colored":"Often"} dyed color fading`,
			want:  "Color Perfector",
		},
		{
			name:  "heat styling",
			query: "straightened and curled daily, heat styling damage",
			want:  "Heat Protect",
		},
		{
			name:  "severe dryness",
			query: `{"dryness":"severe"} very brittle bleached hair`,
			want:  "Ultimate Repair",
		},
		{
			name:  "greasy roots",
			query: "roots get oily every day, lightweight hydration",
			want:  "Aqua Revive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kb.Retrieve(tt.query, 2)
			if len(got) != 2 {
				t.Fatalf("Retrieve() returned %d passages, want 2", len(got))
			}
			if !strings.Contains(got[0], tt.want) {
				t.Errorf("Retrieve(%q)[0] = %q, want it to mention %q", tt.query, got[0], tt.want)
			}
		})
	}
}

func TestRetrieveLimits(t *testing.T) {
	kb := ParseKnowledge("alpha one\n\nbeta two")

	if got := kb.Retrieve("alpha", 0); got != nil {
		t.Errorf("Retrieve(k=0) = %v, want nil", got)
	}
	if got := kb.Retrieve("alpha", 5); len(got) != 2 {
		t.Errorf("Retrieve(k=5) returned %d passages, want 2", len(got))
	}
	// No overlap keeps the original order.
	if got := kb.Retrieve("zzz", 1); got[0] != "alpha one" {
		t.Errorf("Retrieve(no match) = %v, want first passage", got)
	}
	if got := ParseKnowledge("").Retrieve("alpha", 2); got != nil {
		t.Errorf("Retrieve() on empty base = %v, want nil", got)
	}
}

func TestLoadKnowledge(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("second file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("first file\n\nanother"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.md"), []byte("not knowledge"), 0o600); err != nil {
		t.Fatal(err)
	}

	kb, err := LoadKnowledge(dir)
	if err != nil {
		t.Fatalf("LoadKnowledge() error = %v", err)
	}
	if kb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", kb.Len())
	}

	if _, err := LoadKnowledge(t.TempDir()); err == nil {
		t.Error("LoadKnowledge() on empty dir should fail")
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"ends":    "end",
		"colored": "color",
		"styling": "styl",
		"dry":     "dry",
		"gas":     "gas",
	}
	for in, want := range tests {
		if got := stem(in); got != want {
			t.Errorf("stem(%q) = %q, want %q", in, got, want)
		}
	}
}
