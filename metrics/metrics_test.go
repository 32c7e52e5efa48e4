package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/querysafe/querysafe/test"
)

func TestRegisterOrReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := prometheus.CounterOpts{Name: "things_total", Help: "Things."}

	first := RegisterOrReuse(reg, prometheus.NewCounterVec(opts, []string{"kind"}))
	second := RegisterOrReuse(reg, prometheus.NewCounterVec(opts, []string{"kind"}))
	test.Assert(t, first == second, "second registration should reuse the first collector")

	second.WithLabelValues("a").Inc()
	test.AssertMetricWithLabelsEquals(t, first, prometheus.Labels{"kind": "a"}, 1)

	defer func() {
		test.AssertNotNil(t, recover(), "conflicting registration should panic")
	}()
	RegisterOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "things_total", Help: "Other."}, []string{"kind"}))
}

func TestNoopRegisterer(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "x", Help: "x"})
	test.AssertNotError(t, NoopRegisterer.Register(c), "noop register")
	NoopRegisterer.MustRegister(c, c)
	test.Assert(t, NoopRegisterer.Unregister(c), "noop unregister")
}
