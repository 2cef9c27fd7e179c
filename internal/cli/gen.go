package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mickamy/ormgraph/internal/gen"
)

func newGenCommand() *cobra.Command {
	var (
		output       string
		destPkg      string
		sourceImport string
	)
	cmd := &cobra.Command{
		Use:   "gen [file]",
		Short: "Generate RegisterModels for the models of a Go or YAML file",
		Long: `Generate a RegisterModels function declaring every model and association.

Without an argument the file named by $GOFILE is used, so the command can run
from a go:generate directive. The output defaults to <file>_models_gen.go next
to the input.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := os.Getenv("GOFILE")
			if len(args) == 1 {
				input = args[0]
			}
			if input == "" {
				return errors.New("no input file: pass one or run via go:generate")
			}

			s, err := loadSchema(input)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			src, err := gen.Render(s, gen.RenderOption{DestPkg: destPkg, SourceImport: sourceImport})
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}

			if output == "" {
				output = defaultOutput(input)
			}
			if err := os.WriteFile(output, src, 0o644); err != nil { //nolint:gosec // generated code should be world-readable
				return fmt.Errorf("write %s: %w", output, err)
			}
			_, _ = success.Fprintf(cmd.OutOrStdout(), "ormgraph: wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <file>_models_gen.go)")
	cmd.Flags().StringVar(&destPkg, "dest-pkg", "", "package of the generated file (default: same as the input)")
	cmd.Flags().StringVar(&sourceImport, "source-import", "", "import path of the input package, required with --dest-pkg")
	return cmd
}

// defaultOutput maps models.go and schema.yaml to models_models_gen.go and
// schema_models_gen.go in the same directory.
func defaultOutput(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+"_models_gen.go")
}
