// Package commands holds the warden subcommands and the Runtime they share.
package commands

import (
	"context"
	"time"

	"github.com/f9-o/warden/internal/api"
	"github.com/f9-o/warden/internal/core/config"
	"github.com/f9-o/warden/internal/core/logger"
)

type runtimeKey struct{}

// GlobalFlags mirrors the root command's persistent flags.
type GlobalFlags struct {
	Server     string
	Timeout    time.Duration
	Debug      bool
	JSONOutput bool
}

// Runtime is built once in the root PersistentPreRunE and handed to every
// subcommand through its context.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	Flags  GlobalFlags
}

// Client talks to --server when given, otherwise to server.addr from config.
func (rt *Runtime) Client() (*api.Client, error) {
	server := rt.Flags.Server
	if server == "" {
		server = rt.Config.Server.Addr
	}
	return api.NewClient(server, rt.Flags.Timeout)
}

func NewContext(parent context.Context, rt *Runtime) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, runtimeKey{}, rt)
}

// FromContext panics when no Runtime was attached; that only happens if a
// command skips the root pre-run hook.
func FromContext(ctx context.Context) *Runtime {
	if rt, ok := ctx.Value(runtimeKey{}).(*Runtime); ok && rt != nil {
		return rt
	}
	panic("warden: command context has no Runtime")
}
