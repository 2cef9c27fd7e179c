package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mickamy/ormgraph/orm"
)

func newDDLCommand() *cobra.Command {
	var (
		file    string
		dialect string
	)
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE statements for a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := orm.DialectByName(dialect)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(file)
			if err != nil {
				return err
			}
			for _, stmt := range reg.DDL(d) {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), stmt+";"); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "schema.yaml", "schema file (.yaml or .go)")
	cmd.Flags().StringVar(&dialect, "dialect", "postgres", "mysql, postgres or sqlite")
	return cmd
}

func loadRegistry(file string) (*orm.Registry, error) {
	s, err := loadSchema(file)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	reg := orm.NewRegistry()
	if err := s.Register(reg); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return reg, nil
}
