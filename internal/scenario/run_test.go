package scenario_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/delaneyj/proxyparty/internal/scenario"
	"github.com/delaneyj/proxyparty/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *scenario.File {
	t.Helper()
	sc, err := scenario.Parse([]byte(src), t.Name()+".hcl")
	require.NoError(t, err)
	return sc
}

func eventsOf(trace *scenario.Trace, step, phase string) []scenario.Event {
	var out []scenario.Event
	for _, e := range trace.Events {
		if e.Step == step && e.Phase == phase {
			out = append(out, e)
		}
	}
	return out
}

// should re-run effects only for the mutations they depend on
func TestRunCart(t *testing.T) {
	ctx, spy := spyContext()
	sc, err := scenario.Load(ctx, "testdata/cart.hcl")
	require.NoError(t, err)

	trace, err := scenario.Run(ctx, sc)
	require.NoError(t, err)

	assert.Equal(t, []string{"setup", "bump", "unchanged", "drop-coupon", "tag", "untag"}, trace.Steps)
	assert.Equal(t, map[string]int{"render": 3, "badge": 3}, trace.Runs)
	assert.Equal(t, 6, trace.Count(scenario.PhaseRun))
	assert.Equal(t, 5, trace.Count(scenario.PhaseTrigger))
	assert.Equal(t, 9, trace.Count(scenario.PhaseTrack))

	assert.Equal(t, []scenario.Event{
		{Step: "setup", Phase: "track", Effect: "render", Target: "cart", Op: "get", Key: "total"},
		{Step: "setup", Phase: "track", Effect: "render", Target: "cart", Op: "has", Key: "coupon"},
	}, eventsOf(trace, "setup", scenario.PhaseTrack)[:2])
	assert.Equal(t, []scenario.Event{
		{Step: "bump", Phase: "trigger", Effect: "render", Target: "cart", Op: "set", Key: "total"},
	}, eventsOf(trace, "bump", scenario.PhaseTrigger))
	assert.Empty(t, eventsOf(trace, "unchanged", scenario.PhaseTrigger))
	assert.Equal(t, []scenario.Event{
		{Step: "drop-coupon", Phase: "trigger", Effect: "render", Target: "cart", Op: "delete", Key: "coupon"},
	}, eventsOf(trace, "drop-coupon", scenario.PhaseTrigger))

	// two adds in one step, one scheduled run
	assert.Len(t, eventsOf(trace, "tag", scenario.PhaseTrigger), 2)
	assert.Len(t, eventsOf(trace, "tag", scenario.PhaseRun), 1)

	assert.Equal(t, map[string]any{"total": 10}, trace.Values["cart"])
	assert.Empty(t, trace.Values["tags"])
	assert.Zero(t, spy.CountLevel(slog.LevelError))
}

// should ignore writes to read-only objects until the system is unlocked
func TestRunReadonly(t *testing.T) {
	ctx, spy := spyContext()
	sc, err := scenario.Load(ctx, "testdata/readonly.hcl")
	require.NoError(t, err)

	trace, err := scenario.Run(ctx, sc)
	require.NoError(t, err)

	assert.Equal(t, 2, trace.Runs["paint"])
	assert.Empty(t, eventsOf(trace, "locked", scenario.PhaseTrigger))
	assert.True(t, spy.HasWarnWithMessage("set operation failed: target is readonly").WithAttr("key").Assert())

	assert.Equal(t, []scenario.Event{
		{Step: "unlocked", Phase: "trigger", Effect: "paint", Target: "record(1)", Op: "set", Key: "width"},
	}, eventsOf(trace, "unlocked", scenario.PhaseTrigger))
	assert.Equal(t, map[string]any{
		"theme": "dark",
		"panel": map[string]any{"width": 320},
	}, trace.Values["settings"])
}

// should grow sequences through add and notify iteration readers
func TestRunSequence(t *testing.T) {
	ctx, _ := spyContext()
	sc := mustParse(t, `
object "list" {
  kind  = "sequence"
  items = [1, 2]
}
effect "sum" {
  reads = ["list.*"]
}
effect "first" {
  reads = ["list.0"]
}
step "push" {
  add = { list = [3] }
}
step "replace" {
  set = { "list.0" = 7 }
}
`)

	trace, err := scenario.Run(ctx, sc)
	require.NoError(t, err)

	assert.Equal(t, 2, trace.Runs["sum"])
	assert.Equal(t, 2, trace.Runs["first"])
	assert.Empty(t, eventsOf(trace, "push", scenario.PhaseRun)[1:])
	assert.Equal(t, []any{7, 2, 3}, trace.Values["list"])
}

// should build nested records and maps from literal fields
func TestRunMapFields(t *testing.T) {
	ctx, _ := spyContext()
	sc := mustParse(t, `
object "prices" {
  kind   = "map"
  fields = { apple = 1.5, pear = 2 }
}
effect "apple" {
  reads = ["prices.apple"]
}
effect "listing" {
  reads = ["prices.*"]
}
step "add-plum" {
  set = { "prices.plum" = 3 }
}
step "empty" {
  clear = ["prices"]
}
`)

	trace, err := scenario.Run(ctx, sc)
	require.NoError(t, err)

	// plum is new, so only the iteration reader re-runs
	assert.Equal(t, map[string]int{"apple": 2, "listing": 3}, trace.Runs)
	assert.Equal(t, map[string]any{}, trace.Values["prices"])
}

// should join effect errors without stopping the replay
func TestRunEffectError(t *testing.T) {
	ctx, _ := spyContext()
	sc := mustParse(t, `
object "cart" {
  fields = { total = 0 }
}
effect "broken" {
  reads = ["cart.missing.x"]
}
effect "fine" {
  reads = ["cart.total"]
}
step "bump" {
  set = { "cart.total" = 1 }
}
`)

	trace, err := scenario.Run(ctx, sc)
	require.Error(t, err)
	assert.ErrorContains(t, err, `effect "broken"`)
	require.NotNil(t, trace)
	assert.Equal(t, 2, trace.Runs["fine"])
}

// should refuse to add to a record
func TestRunAddToRecord(t *testing.T) {
	ctx, _ := spyContext()
	sc := mustParse(t, `
object "cart" {}
step "bad" {
  add = { cart = ["x"] }
}
`)

	_, err := scenario.Run(ctx, sc)
	assert.ErrorIs(t, err, reactive.ErrNotCollection)
}

// should stop between steps when the context is cancelled
func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc := mustParse(t, `
object "cart" { fields = { total = 0 } }
step "bump" { set = { "cart.total" = 1 } }
`)

	trace, err := scenario.Run(ctx, sc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"setup"}, trace.Steps)
}

// should tag step logs with the step name and the runs it caused
func TestRunLogsSteps(t *testing.T) {
	ctx, spy := spyContext()
	sc, err := scenario.Load(ctx, "testdata/cart.hcl")
	require.NoError(t, err)
	_, err = scenario.Run(ctx, sc)
	require.NoError(t, err)

	applied := map[string]int64{}
	for _, record := range spy.Records() {
		if record.Message != "Applied scenario step." {
			continue
		}
		var step string
		var runs int64
		record.Attrs(func(attr slog.Attr) bool {
			switch attr.Key {
			case "step":
				step = attr.Value.String()
			case "runs":
				runs = attr.Value.Int64()
			}
			return true
		})
		applied[step] = runs
	}
	assert.Equal(t, map[string]int64{
		"bump":        1,
		"unchanged":   0,
		"drop-coupon": 1,
		"tag":         1,
		"untag":       1,
	}, applied)
}

type countingCollector map[string]int

func (c countingCollector) IncrementCounter(metric string, _ map[string]string) {
	c[metric]++
}

// should pass system options through to the reactive system
func TestRunWithMetrics(t *testing.T) {
	ctx, _ := spyContext()
	sc, err := scenario.Load(ctx, "testdata/cart.hcl")
	require.NoError(t, err)

	counts := countingCollector{}
	trace, err := scenario.Run(ctx, sc, scenario.WithSystemOptions(reactive.WithMetrics(counts)))
	require.NoError(t, err)

	assert.Equal(t, trace.Count(scenario.PhaseRun), counts[reactive.MetricEffectRuns])
	assert.Equal(t, trace.Count(scenario.PhaseTrack), counts[reactive.MetricTracks])
}
