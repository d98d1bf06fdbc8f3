package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
)

type pagerPlugin struct {
	name     string
	version  string
	initErr  error
	fired    []string
	records  []*v1.FailoverRecord
	shutdown bool
}

func (p *pagerPlugin) Name() string { return p.name }
func (p *pagerPlugin) APIVersion() string { return p.version }
func (p *pagerPlugin) Init(map[string]string) error { return p.initErr }
func (p *pagerPlugin) Shutdown() error {
	p.shutdown = true
	return nil
}

func (p *pagerPlugin) Hooks() map[string]v1.HookFunc {
	record := func(hook string) v1.HookFunc {
		return func(hc v1.HookContext) error {
			p.fired = append(p.fired, hook+":"+hc.Service)
			p.records = append(p.records, hc.Record)
			return nil
		}
	}
	return map[string]v1.HookFunc{
		v1.HookOnFailover:          record(v1.HookOnFailover),
		v1.HookOnFailoverFailed:    record(v1.HookOnFailoverFailed),
		v1.HookOnServiceRegistered: record(v1.HookOnServiceRegistered),
	}
}

func TestRegisterAndNotify(t *testing.T) {
	h := NewHost(logger.Nop())
	p := &pagerPlugin{name: "pager", version: v1.PluginAPIVersion}
	require.NoError(t, h.Register(p, nil))
	assert.Equal(t, []string{"pager"}, h.List())

	ctx := context.Background()
	h.ServiceRegistered(ctx, "orders")
	require.NoError(t, h.Notify(ctx, v1.FailoverRecord{Service: "orders", Action: v1.ActionRestartService, Success: true}))
	require.NoError(t, h.Notify(ctx, v1.FailoverRecord{Service: "orders", Action: v1.ActionScaleUp}))

	assert.Equal(t, []string{
		"OnServiceRegistered:orders",
		"OnFailover:orders",
		"OnFailoverFailed:orders",
	}, p.fired)
	require.NotNil(t, p.records[1])
	assert.Equal(t, v1.ActionRestartService, p.records[1].Action)

	h.Shutdown()
	assert.True(t, p.shutdown)
}

func TestRegisterRejects(t *testing.T) {
	h := NewHost(logger.Nop())
	assert.Error(t, h.Register(&pagerPlugin{name: "old", version: "v0"}, nil))
	assert.Error(t, h.Register(&pagerPlugin{name: "broken", version: v1.PluginAPIVersion, initErr: errors.New("no token")}, nil))

	require.NoError(t, h.Register(&pagerPlugin{name: "pager", version: v1.PluginAPIVersion}, nil))
	assert.Error(t, h.Register(&pagerPlugin{name: "pager", version: v1.PluginAPIVersion}, nil))
	assert.Equal(t, []string{"pager"}, h.List())
}

func TestFireSurvivesPanics(t *testing.T) {
	h := NewHost(logger.Nop())
	h.hooks[v1.HookOnFailover] = []v1.HookFunc{
		func(v1.HookContext) error { panic("boom") },
		func(v1.HookContext) error { return errors.New("slack down") },
	}
	var reached bool
	h.hooks[v1.HookOnFailover] = append(h.hooks[v1.HookOnFailover], func(v1.HookContext) error {
		reached = true
		return nil
	})
	h.Fire(context.Background(), v1.HookOnFailover, v1.HookContext{Service: "orders"})
	assert.True(t, reached)
}

func TestLoadDirSkipsMissing(t *testing.T) {
	h := NewHost(logger.Nop())
	assert.NoError(t, h.LoadDir(t.TempDir(), nil))
	assert.Empty(t, h.List())
}

type legacyPlugin struct{ pagerPlugin }

func (p *legacyPlugin) Hooks() map[string]v1.HookFunc {
	hooks := p.pagerPlugin.Hooks()
	hooks["OnPreDeploy"] = func(v1.HookContext) error { return nil }
	return hooks
}

func TestRegisterIgnoresUnknownHooks(t *testing.T) {
	h := NewHost(logger.Nop())
	require.NoError(t, h.Register(&legacyPlugin{pagerPlugin{name: "legacy", version: v1.PluginAPIVersion}}, nil))

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.NotContains(t, h.hooks, "OnPreDeploy")
	assert.Len(t, h.hooks[v1.HookOnFailover], 1)
}
