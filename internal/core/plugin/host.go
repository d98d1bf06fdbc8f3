// Package plugin implements the Warden plugin host.
// Plugins are loaded from ~/.warden/plugins/ as Go shared objects (.so files),
// or registered in-process. Each .so must export a "WardenPlugin" symbol
// implementing api/v1.PluginV1.
package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"plugin"
	"sort"
	"sync"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
)

// Symbol is the name every shared-object plugin must export.
const Symbol = "WardenPlugin"

// Host manages plugin lifecycle and hook dispatch.
type Host struct {
	mu      sync.RWMutex
	plugins map[string]v1.PluginV1   // name → plugin
	hooks   map[string][]v1.HookFunc // hookName → ordered list
	log     *logger.Logger
}

// NewHost creates and returns an empty plugin host.
func NewHost(log *logger.Logger) *Host {
	return &Host{
		plugins: make(map[string]v1.PluginV1),
		hooks:   make(map[string][]v1.HookFunc),
		log:     log,
	}
}

// LoadDir scans dir for *.so files and attempts to load each as a Warden plugin.
// Load failures are logged and skipped; they never abort host startup.
func (h *Host) LoadDir(dir string, cfg map[string]string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return fmt.Errorf("glob plugins: %w", err)
	}

	for _, path := range matches {
		if err := h.loadPlugin(path, cfg); err != nil {
			h.log.Warn("plugin load failed, skipping", "path", path, "err", err)
		}
	}
	return nil
}

func (h *Host) loadPlugin(path string, cfg map[string]string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("plugin panicked during load: %v", r)
		}
	}()

	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("open shared object: %w", err)
	}
	sym, err := p.Lookup(Symbol)
	if err != nil {
		return fmt.Errorf("symbol %s not found: %w", Symbol, err)
	}
	impl, ok := sym.(v1.PluginV1)
	if !ok {
		return fmt.Errorf("%s does not implement PluginV1", Symbol)
	}
	return h.Register(impl, cfg)
}

// Register initialises p and subscribes its hooks. Plugin names are unique.
func (h *Host) Register(p v1.PluginV1, cfg map[string]string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("plugin panicked during init: %v", r)
		}
	}()

	if p.APIVersion() != v1.PluginAPIVersion {
		return fmt.Errorf("API version mismatch: plugin=%q, host=%q", p.APIVersion(), v1.PluginAPIVersion)
	}

	name := p.Name()
	h.mu.RLock()
	_, dup := h.plugins[name]
	h.mu.RUnlock()
	if dup {
		return fmt.Errorf("plugin %q already registered", name)
	}

	if err := p.Init(cfg); err != nil {
		return fmt.Errorf("plugin Init() failed: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.plugins[name] = p
	for hookName, fn := range p.Hooks() {
		if !v1.IsKnownHook(hookName) {
			h.log.Warn("plugin subscribed to unknown hook, ignoring", "plugin", name, "hook", hookName)
			continue
		}
		h.hooks[hookName] = append(h.hooks[hookName], fn)
	}

	h.log.Info("plugin loaded", "name", name, "api_version", p.APIVersion())
	return nil
}

// Fire dispatches a named hook to all subscribed plugins in registration order.
// Plugin errors and panics are logged and do not stop later plugins.
func (h *Host) Fire(ctx context.Context, hookName string, hctx v1.HookContext) {
	h.mu.RLock()
	fns := h.hooks[hookName]
	h.mu.RUnlock()

	for _, fn := range fns {
		if ctx.Err() != nil {
			return
		}
		func(f v1.HookFunc) {
			defer func() {
				if r := recover(); r != nil {
					h.log.Error("plugin hook panicked", "hook", hookName, "panic", fmt.Sprintf("%v", r))
				}
			}()
			if err := f(hctx); err != nil {
				h.log.Warn("plugin hook returned error", "hook", hookName, "err", err)
			}
		}(fn)
	}
}

// Notify fires OnFailover or OnFailoverFailed for rec.
func (h *Host) Notify(ctx context.Context, rec v1.FailoverRecord) error {
	hook := v1.HookOnFailover
	if !rec.Success {
		hook = v1.HookOnFailoverFailed
	}
	h.Fire(ctx, hook, v1.HookContext{Service: rec.Service, Action: rec.Action, Record: &rec})
	return nil
}

// ServiceRegistered fires OnServiceRegistered.
func (h *Host) ServiceRegistered(ctx context.Context, service string) {
	h.Fire(ctx, v1.HookOnServiceRegistered, v1.HookContext{Service: service})
}

// Shutdown calls Shutdown() on every loaded plugin.
func (h *Host) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for name, p := range h.plugins {
		if err := p.Shutdown(); err != nil {
			h.log.Warn("plugin shutdown error", "name", name, "err", err)
		}
	}
}

// List returns the names of all loaded plugins, sorted.
func (h *Host) List() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
