package id

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestNewRunID(t *testing.T) {
	id := NewRunID()

	if !strings.HasPrefix(id.String(), RunPrefix+"_") {
		t.Errorf("Run ID should start with '%s_', got: %s", RunPrefix, id)
	}
	if !id.Valid() {
		t.Errorf("Run ID should be valid: %s", id)
	}
}

func TestRunIDValid(t *testing.T) {
	tests := []struct {
		id   RunID
		want bool
	}{
		{RunID("run_01ARZ3NDEKTSV4RRFFQ69G5FAV"), true},
		{RunID("app_01ARZ3NDEKTSV4RRFFQ69G5FAV"), false},
		{RunID("run_not-a-ulid"), false},
		{RunID(""), false},
	}

	for _, tt := range tests {
		if got := tt.id.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const n = 200
	ids := make(chan RunID, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewRunID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[RunID]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate id %s", id)
		}
		seen[id] = true
	}
}
