package v1

// PluginAPIVersion must be returned verbatim by PluginV1.APIVersion.
const PluginAPIVersion = "v1"

// Hooks a plugin may subscribe to.
const (
	HookOnServiceRegistered = "OnServiceRegistered"
	HookOnFailover          = "OnFailover"
	HookOnFailoverFailed    = "OnFailoverFailed"
)

var knownHooks = map[string]struct{}{
	HookOnServiceRegistered: {},
	HookOnFailover:          {},
	HookOnFailoverFailed:    {},
}

// IsKnownHook reports whether name is a hook the host fires.
func IsKnownHook(name string) bool {
	_, ok := knownHooks[name]
	return ok
}

// HookContext is what a hook receives. Record is nil for
// HookOnServiceRegistered.
type HookContext struct {
	Service  string
	Action   Action
	Record   *FailoverRecord
	Metadata map[string]string
}

type HookFunc func(ctx HookContext) error

// PluginV1 is implemented by in-process plugins and by the WardenPlugin symbol
// of a shared-object plugin.
type PluginV1 interface {
	Name() string
	APIVersion() string
	// Init receives the plugins.config map. An error rejects the plugin.
	Init(cfg map[string]string) error
	Hooks() map[string]HookFunc
	Shutdown() error
}
