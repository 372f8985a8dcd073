package stats

import (
	"bytes"
	"strings"
	"testing"
)

func TestCountersAndExposition(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		s.RecordCommand()
	}
	s.RecordMutation()
	s.RecordError()
	s.RecordConnection()

	if got := s.Commands(); got != 3 {
		t.Fatalf("Commands() = %d, want 3", got)
	}

	var buf bytes.Buffer
	s.WritePrometheus(&buf)
	out := buf.String()
	for _, line := range []string{
		"miniredis_commands_total 3",
		"miniredis_mutations_total 1",
		"miniredis_errors_total 1",
		"miniredis_connections_total 1",
	} {
		if !strings.Contains(out, line) {
			t.Fatalf("exposition missing %q:\n%s", line, out)
		}
	}
}

func TestSetsAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.RecordCommand()
	if b.Commands() != 0 {
		t.Fatal("counter sets must not be shared across instances")
	}
}
