package stats

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Stats tracks server-wide counters backing the INFO command and the
// optional Prometheus endpoint. Each Stats owns its own metrics set so
// multiple servers in one process (tests) do not collide.
type Stats struct {
	set         *metrics.Set
	commands    *metrics.Counter
	mutations   *metrics.Counter
	errors      *metrics.Counter
	connections *metrics.Counter
}

func New() *Stats {
	set := metrics.NewSet()
	return &Stats{
		set:         set,
		commands:    set.NewCounter("miniredis_commands_total"),
		mutations:   set.NewCounter("miniredis_mutations_total"),
		errors:      set.NewCounter("miniredis_errors_total"),
		connections: set.NewCounter("miniredis_connections_total"),
	}
}

func (s *Stats) RecordCommand()    { s.commands.Inc() }
func (s *Stats) RecordMutation()   { s.mutations.Inc() }
func (s *Stats) RecordError()      { s.errors.Inc() }
func (s *Stats) RecordConnection() { s.connections.Inc() }

// Commands returns the number of commands processed, for INFO.
func (s *Stats) Commands() uint64 { return s.commands.Get() }

// WritePrometheus dumps the counters in Prometheus text format.
func (s *Stats) WritePrometheus(w io.Writer) { s.set.WritePrometheus(w) }
