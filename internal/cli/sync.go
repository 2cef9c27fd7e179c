package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mickamy/ormgraph/logging"
	"github.com/mickamy/ormgraph/orm"
)

func newSyncCommand() *cobra.Command {
	var (
		file    string
		url     string
		force   bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create the tables of a schema in a database",
		Long: `Create every table and index of a schema, referenced tables first.

The database is read from --url or DATABASE_URL, which may be set in a .env
file in the working directory.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("load .env: %w", err)
				}
				url = os.Getenv("DATABASE_URL")
			}
			if url == "" {
				return errors.New("DATABASE_URL not set (in .env, the environment or --url)")
			}
			conn, err := parseDatabaseURL(url)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(file)
			if err != nil {
				return err
			}

			db, err := conn.open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return fmt.Errorf("build logger: %w", err)
				}
				defer func() { _ = logger.Sync() }()
				db = db.Observe(logging.Observer(logger))
			}

			if err := reg.Sync(cmd.Context(), db, &orm.SyncOptions{Force: force}); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			_, _ = success.Fprintf(cmd.OutOrStdout(), "ormgraph: synced %d tables\n", len(reg.Models()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "schema.yaml", "schema file (.yaml or .go)")
	cmd.Flags().StringVar(&url, "url", "", "database URL (default $DATABASE_URL)")
	cmd.Flags().BoolVar(&force, "force", false, "drop every table before creating it")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every statement")
	return cmd
}
