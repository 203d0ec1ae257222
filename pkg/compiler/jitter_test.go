package compiler

import (
	"testing"

	"github.com/openconverge/openconverge/pkg/engine"
)

func TestJitter_Deterministic(t *testing.T) {
	first, second, err := NewJitter("agent1.example.com").Offsets(30)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for i := 0; i < 20; i++ {
		f, s, err := NewJitter("agent1.example.com").Offsets(30)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if f != first || s != second {
			t.Fatalf("Iteration %d: expected stable offsets (%d, %d), got (%d, %d)",
				i, first, second, f, s)
		}
	}
}

func TestJitter_Ranges(t *testing.T) {
	hosts := []string{
		"agent1.example.com",
		"agent2.example.com",
		"db-03.prod.internal",
		"web.test",
		"",
	}
	for _, host := range hosts {
		for _, n := range []int{1, 5, 30, 60} {
			first, second, err := NewJitter(host).Offsets(n)
			if err != nil {
				t.Fatalf("host %q n=%d: expected no error, got: %v", host, n, err)
			}
			if first < 0 || first >= n {
				t.Errorf("host %q n=%d: first offset %d out of [0, %d)", host, n, first, n)
			}
			if second < 30 || second >= n+30 {
				t.Errorf("host %q n=%d: second offset %d out of [30, %d)", host, n, second, n+30)
			}
		}
	}
}

func TestJitter_HostsDiverge(t *testing.T) {
	// Not guaranteed per pair, but across many hosts the offsets must not
	// collapse onto one value.
	seen := make(map[int]bool)
	hosts := []string{"a.example", "b.example", "c.example", "d.example",
		"e.example", "f.example", "g.example", "h.example"}
	for _, host := range hosts {
		first, _, err := NewJitter(host).Offsets(60)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		seen[first] = true
	}
	if len(seen) < 2 {
		t.Errorf("Expected hosts to disperse across the interval, all got the same offset")
	}
}

func TestJitter_InvalidInterval(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, _, err := NewJitter("agent1.example.com").Offsets(n)
		if err == nil {
			t.Fatalf("Expected error for interval %d, got nil", n)
		}
		if !engine.IsCompileError(err) {
			t.Errorf("Expected compile error for interval %d, got: %v", n, err)
		}
	}
}
