// Package cli defines the root Cobra command and global flag/context setup.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/f9-o/warden/internal/cli/commands"
	"github.com/f9-o/warden/internal/core/config"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/pkg/errs"
	"github.com/f9-o/warden/pkg/pprint"
)

// globalFlags holds values bound to persistent global flags.
type globalFlags struct {
	configFile string
	server     string
	timeout    time.Duration
	debug      bool
	jsonOutput bool
}

// NewRootCmd builds the warden command tree.
func NewRootCmd() *cobra.Command {
	var flags globalFlags
	var log *logger.Logger

	root := &cobra.Command{
		Use:           "warden",
		Short:         "Warden: health-driven failover for self-hosted services",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "init" || cmd.Name() == "completion" {
				return nil
			}
			var err error
			log, err = initRuntime(cmd, flags)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if log != nil {
				return log.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to warden.yaml (defaults to auto-discovery)")
	pf.StringVarP(&flags.server, "server", "s", "", "Warden API address (defaults to server.addr)")
	pf.DurationVar(&flags.timeout, "timeout", 2*time.Minute, "Timeout for API requests")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug-level logging")
	pf.BoolVar(&flags.jsonOutput, "json", false, "Output in machine-readable JSON")

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewServeCmd(),
		commands.NewStatusCmd(),
		commands.NewServicesCmd(),
		commands.NewRulesCmd(),
		commands.NewFailoverCmd(),
		commands.NewMaintenanceCmd(),
		commands.NewHistoryCmd(),
		commands.NewErrorRateCmd(),
		commands.NewNodesCmd(),
		commands.NewUICmd(),
		commands.NewVersionCmd(),
	)

	// Show banner before every help screen
	origHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd == cmd.Root() {
			pprint.PrintBanner(commands.Version, commands.BuildDate)
		}
		origHelp(cmd, args)
	})
	return root
}

// Execute runs the CLI. Called by main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		msg := err.Error()
		if we := errs.AsWarden(err); we != nil {
			msg = we.UserMessage()
		}
		pprint.Error("%s", msg)
		os.Exit(1)
	}
}

// initRuntime loads config and the logger before each command runs. Only
// commands annotated for audit open the audit log.
func initRuntime(cmd *cobra.Command, flags globalFlags) (*logger.Logger, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(config.Home(), "logs", "warden.log")
	}
	var auditFile string
	if cmd.Annotations[commands.AnnotationAudit] == "true" {
		auditFile = cfg.AuditPath()
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, logFile, auditFile, flags.debug)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	cmd.SetContext(commands.NewContext(cmd.Context(), &commands.Runtime{
		Config: cfg,
		Log:    log,
		Flags: commands.GlobalFlags{
			Server:     flags.server,
			Timeout:    flags.timeout,
			Debug:      flags.debug,
			JSONOutput: flags.jsonOutput,
		},
	}))
	return log, nil
}
