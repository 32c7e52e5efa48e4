package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// NoopRegisterer is a prometheus.Registerer that does nothing. It is the
// default for components whose caller did not ask for metrics.
var NoopRegisterer = noopRegisterer{}

type noopRegisterer struct{}

func (np noopRegisterer) MustRegister(_ ...prometheus.Collector) {}
func (np noopRegisterer) Register(_ prometheus.Collector) error  { return nil }
func (np noopRegisterer) Unregister(_ prometheus.Collector) bool { return true }

// RegisterOrReuse registers c with stats and returns it. If an identical
// collector is already registered, that one is returned instead, so several
// instances of a component can share one registry. Any other registration
// error panics, as MustRegister would.
func RegisterOrReuse[C prometheus.Collector](stats prometheus.Registerer, c C) C {
	err := stats.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		existing, ok := are.ExistingCollector.(C)
		if ok {
			return existing
		}
	}
	panic(err)
}
