package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/f9-o/warden/pkg/pprint"
)

// Set by cmd/warden from -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// NewVersionCmd runs without a loaded config, so it reads --json itself.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "version",
		Short:        "Print Warden version information",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentVersion()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}

			pprint.PrintBanner(info.Version, info.BuildDate)
			pprint.KV("Commit", info.Commit)
			pprint.KV("Go", info.GoVersion)
			pprint.KV("Platform", info.Platform)
			return nil
		},
	}
}
