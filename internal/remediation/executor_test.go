package remediation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/balancer"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
)

type scaleCall struct {
	service string
	delta   int
	limits  ScaleLimits
}

type fakeRuntime struct {
	restarts []string
	scales   []scaleCall
	err      error
}

func (f *fakeRuntime) Restart(_ context.Context, service string) error {
	f.restarts = append(f.restarts, service)
	return f.err
}

func (f *fakeRuntime) Scale(_ context.Context, service string, delta int, limits ScaleLimits) error {
	f.scales = append(f.scales, scaleCall{service, delta, limits})
	return f.err
}

func TestExecutorDispatchesRuntimeActions(t *testing.T) {
	rt := &fakeRuntime{}
	ex := NewExecutor(rt, balancer.NewSelector(logger.Nop()), logger.Nop())
	ctx := context.Background()

	ok, err := ex.Execute(ctx, v1.ActionRestartService, "orders", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"orders"}, rt.restarts)

	ok, err = ex.Execute(ctx, v1.ActionScaleUp, "orders", map[string]string{"step": "2", "max_replicas": "5"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ex.Execute(ctx, v1.ActionScaleDown, "orders", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []scaleCall{
		{"orders", 2, ScaleLimits{Min: 1, Max: 5}},
		{"orders", -1, ScaleLimits{Min: 1}},
	}, rt.scales)
}

func TestExecutorReportsFailure(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("daemon unreachable")}
	ex := NewExecutor(rt, balancer.NewSelector(logger.Nop()), logger.Nop())

	ok, err := ex.Execute(context.Background(), v1.ActionRestartService, "orders", nil)
	assert.False(t, ok)
	assert.True(t, errs.IsCode(err, errs.ErrRemediation))
	assert.ErrorContains(t, err, "daemon unreachable")
}

func TestExecutorRejectsUnknownAction(t *testing.T) {
	ex := NewExecutor(&fakeRuntime{}, balancer.NewSelector(logger.Nop()), logger.Nop())
	ok, err := ex.Execute(context.Background(), v1.Action("reboot"), "orders", nil)
	assert.False(t, ok)
	assert.True(t, errs.IsCode(err, errs.ErrUnknownAction))
}

func TestExecutorRejectsBadScaleParams(t *testing.T) {
	rt := &fakeRuntime{}
	ex := NewExecutor(rt, balancer.NewSelector(logger.Nop()), logger.Nop())
	ok, err := ex.Execute(context.Background(), v1.ActionScaleUp, "orders", map[string]string{"step": "lots"})
	assert.False(t, ok)
	assert.True(t, errs.IsCode(err, errs.ErrRemediationParam))
	assert.Empty(t, rt.scales)
}

func TestExecutorTrafficActions(t *testing.T) {
	sel := balancer.NewSelector(logger.Nop())
	ex := NewExecutor(&fakeRuntime{}, sel, logger.Nop())
	ctx := context.Background()

	eps := []v1.ServiceEndpoint{{Name: "p1", Priority: 1}, {Name: "p2", Priority: 2}}
	sample := v1.HealthSample{Endpoints: []v1.EndpointHealth{{Name: "p1", Healthy: true}, {Name: "p2", Healthy: true}}}

	ok, err := ex.Execute(ctx, v1.ActionSwitchTraffic, "orders", nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, balancer.ErrNoActiveEndpoint)

	_, found := sel.SelectActive("orders", eps, sample)
	require.True(t, found)
	ok, err = ex.Execute(ctx, v1.ActionSwitchTraffic, "orders", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ := sel.SelectActive("orders", eps, sample)
	assert.Equal(t, "p2", got.Name)

	for i := 0; i < 2; i++ {
		ok, err = ex.Execute(ctx, v1.ActionEnableMaintenance, "orders", nil)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.True(t, sel.InMaintenance("orders"))
}

func TestParseScaleParams(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		step    int
		limits  ScaleLimits
		wantErr bool
	}{
		{"defaults", nil, 1, ScaleLimits{Min: 1}, false},
		{"explicit", map[string]string{"step": "3", "min_replicas": "2", "max_replicas": "8"}, 3, ScaleLimits{Min: 2, Max: 8}, false},
		{"zero step", map[string]string{"step": "0"}, 0, ScaleLimits{}, true},
		{"max below min", map[string]string{"min_replicas": "4", "max_replicas": "2"}, 0, ScaleLimits{}, true},
		{"not a number", map[string]string{"max_replicas": "ten"}, 0, ScaleLimits{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, limits, err := ParseScaleParams(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.step, step)
			assert.Equal(t, tt.limits, limits)
		})
	}
}

func TestScaleLimitsClamp(t *testing.T) {
	l := ScaleLimits{Min: 1, Max: 4}
	target, ok := l.clamp(2, 5)
	assert.Equal(t, 4, target)
	assert.True(t, ok)

	_, ok = l.clamp(4, 1)
	assert.False(t, ok)

	target, ok = l.clamp(3, -5)
	assert.Equal(t, 1, target)
	assert.True(t, ok)

	_, ok = l.clamp(1, -1)
	assert.False(t, ok)
}
