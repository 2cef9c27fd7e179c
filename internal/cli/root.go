// Package cli implements the ormgraph command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mickamy/ormgraph/internal/gen"
)

var (
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed, color.Bold)
)

// NewRootCommand returns the ormgraph command with every subcommand attached.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "ormgraph",
		Short: "Model registration, DDL and schema sync for ormgraph",
		Long: `ormgraph reads model declarations from Go structs or a schema.yaml file.

Examples:

  //go:generate ormgraph gen
  ormgraph ddl -f schema.yaml --dialect postgres
  ormgraph sync -f schema.yaml --force
`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGenCommand(), newDDLCommand(), newSyncCommand())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		_, _ = failure.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadSchema reads a schema from a Go source file or a YAML document,
// chosen by extension.
func loadSchema(path string) (*gen.Schema, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return gen.LoadFile(path)
	case ".go":
		return gen.Parse(path)
	default:
		return nil, fmt.Errorf("unsupported schema file %q: want .go, .yaml or .yml", path)
	}
}
