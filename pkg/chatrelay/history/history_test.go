package history

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func makeTurns(n int) []Turn {
	turns := make([]Turn, n)
	for i := range turns {
		if i%2 == 0 {
			turns[i] = UserTurn(fmt.Sprintf("u%d", i))
		} else {
			turns[i] = AssistantTurn(fmt.Sprintf("a%d", i))
		}
	}
	return turns
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		n     int
		limit int
		want  int
	}{
		{"under limit", 3, 4, 3},
		{"at limit", 4, 4, 4},
		{"over limit", 9, 4, 4},
		{"unbounded", 9, 0, 9},
		{"empty", 0, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := makeTurns(tt.n)
			got := Truncate(in, tt.limit)
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if !reflect.DeepEqual(got, in[tt.n-tt.want:]) {
				t.Errorf("Truncate kept %v, want most recent %v", got, in[tt.n-tt.want:])
			}
		})
	}
}

func TestTruncate_DoesNotAlias(t *testing.T) {
	t.Parallel()
	in := makeTurns(4)
	out := Truncate(in, 2)
	out[0].Content = "changed"
	if in[2].Content == "changed" {
		t.Error("Truncate result shares memory with its input")
	}
}

func TestHistory_AppendEnforcesBound(t *testing.T) {
	t.Parallel()

	const maxPairs = 3
	h := New(nil, maxPairs)
	var all []Turn
	for i := 0; i < 10; i++ {
		u := UserTurn(fmt.Sprintf("q%d", i))
		a := AssistantTurn(fmt.Sprintf("r%d", i))
		h.Append(u, a)
		all = append(all, u, a)

		if h.Len() > 2*maxPairs {
			t.Fatalf("after append %d: len = %d, exceeds %d", i, h.Len(), 2*maxPairs)
		}
	}

	got := h.Turns()
	want := all[len(all)-2*maxPairs:]
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Turns() = %v, want %v", got, want)
	}
	if got[0].Role != RoleUser {
		t.Errorf("pair-wise appends should keep whole pairs, first role = %q", got[0].Role)
	}
}

func TestHistory_SingleAppendsCanSplitPair(t *testing.T) {
	t.Parallel()

	h := New(makeTurns(4), 2)
	h.Append(UserTurn("extra"))

	got := h.Turns()
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Role != RoleAssistant {
		t.Errorf("first role = %q, want assistant after mid-pair cut", got[0].Role)
	}
	if got[3].Content != "extra" {
		t.Errorf("last turn = %q, want %q", got[3].Content, "extra")
	}
}

func TestNew_TruncatesSeed(t *testing.T) {
	t.Parallel()
	seed := makeTurns(25)
	h := New(seed, 10)
	if h.Len() != 20 {
		t.Fatalf("len = %d, want 20", h.Len())
	}
	if !reflect.DeepEqual(h.Turns(), seed[5:]) {
		t.Error("seeded history did not keep the most recent turns")
	}
	if h.Limit() != 20 {
		t.Errorf("Limit() = %d, want 20", h.Limit())
	}
}

func TestHistory_TurnsIsCopy(t *testing.T) {
	t.Parallel()
	h := New(makeTurns(2), 5)
	turns := h.Turns()
	turns[0].Content = "mutated"
	if h.Turns()[0].Content == "mutated" {
		t.Error("Turns() exposes internal storage")
	}
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	t.Parallel()
	h := New(nil, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h.Append(UserTurn("q"), AssistantTurn("a"))
			}
		}(i)
	}
	wg.Wait()

	if h.Len() != 100 {
		t.Errorf("len = %d, want 100", h.Len())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := Validate(makeTurns(3)); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	bad := []Turn{{Role: "system", Content: "x"}}
	if err := Validate(bad); err == nil {
		t.Error("Validate should reject the system role")
	}
}
