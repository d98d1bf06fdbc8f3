package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f9-o/warden/internal/core/config"
	"github.com/f9-o/warden/pkg/pprint"
)

// writeTemplate creates dir/warden.yaml from the documented template and
// returns its path. An existing file is kept unless force is set.
func writeTemplate(dir string, force bool) (string, error) {
	out := filepath.Join(dir, config.ProjectFile)
	_, err := os.Stat(out)
	switch {
	case err == nil && !force:
		return "", fmt.Errorf("%s already exists, use --force to overwrite", out)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir %q: %w", dir, err)
	}
	if err := os.WriteFile(out, []byte(config.DefaultConfigTemplate), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}

func NewInitCmd() *cobra.Command {
	var (
		dir    string
		force  bool
		stdout bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter warden.yaml",
		Example: `  warden init
  warden init --path ./ops --force
  warden init --stdout > warden.yaml`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if stdout {
				_, err := io.WriteString(cmd.OutOrStdout(), config.DefaultConfigTemplate)
				return err
			}
			if dir == "" {
				dir = "."
			}
			path, err := writeTemplate(dir, force)
			if err != nil {
				return err
			}
			pprint.Success("Created %s", path)
			pprint.Info("Declare services and rules in it, then start the daemon with: warden serve")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "path", ".", "Directory to write warden.yaml into")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing warden.yaml")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print the template instead of writing a file")
	return cmd
}
