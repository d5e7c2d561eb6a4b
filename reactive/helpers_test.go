package reactive_test

import (
	"testing"

	"github.com/delaneyj/proxyparty/internal/logspy"
	"github.com/delaneyj/proxyparty/reactive"
	"github.com/stretchr/testify/assert"
)

// newSystem fails the test on any effect error and captures log output.
func newSystem(t *testing.T, opts ...reactive.Option) (*reactive.ReactiveSystem, *logspy.LogHandlerSpy) {
	t.Helper()
	spy := logspy.New()
	base := []reactive.Option{
		reactive.WithLogger(spy.Logger()),
		reactive.WithOnError(func(from *reactive.EffectRunner, err error) {
			assert.FailNow(t, err.Error())
		}),
	}
	return reactive.CreateReactiveSystem(append(base, opts...)...), spy
}

func reactiveRecord(rs *reactive.ReactiveSystem, fields map[string]any) *reactive.Proxy {
	return rs.Reactive(reactive.NewRecord(fields)).(*reactive.Proxy)
}
