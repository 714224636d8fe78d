package cli

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"medcanna/m/internal/accounts"
	"medcanna/m/internal/catalog"
	"medcanna/m/internal/config"
	"medcanna/m/internal/database"
	"medcanna/m/internal/documents"
	"medcanna/m/internal/ledger"
	"medcanna/m/internal/migrations"
	"medcanna/m/internal/orders"
	"medcanna/m/internal/products"
	"medcanna/m/internal/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	DSN     string
	Verbose bool

	// Config is resolved before any subcommand runs.
	Config config.Config
}

// NewRootCommand creates the root command for the medcanna CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "medcanna",
		Short:         "MedCanna storefront and inventory service",
		Long:          "Runs the medical cannabis storefront API and its stock ledger maintenance tasks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.EnvFile != "" {
				if err := godotenv.Load(opts.EnvFile); err != nil {
					return fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
				}
			}
			opts.Config = config.Load()
			if opts.DSN != "" {
				opts.Config.DatabaseDSN = opts.DSN
			}
			level := opts.Config.LogLevel
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "load environment variables from this file")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database DSN (overrides DATABASE_DSN)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewCreateAdminCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// openDB connects and brings the schema up to date.
func openDB(cfg config.Config) (*sqlx.DB, error) {
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type services struct {
	ledger    *ledger.Ledger
	accounts  *accounts.Service
	products  *products.Service
	documents *documents.Service
	orders    *orders.Service
	catalog   *catalog.Service
}

func newServices(db *sqlx.DB, cfg config.Config, store storage.Store) services {
	l := ledger.New(db, cfg.LedgerMaxRetries)
	acc := accounts.New(db)
	prods := products.New(db, l)
	return services{
		ledger:    l,
		accounts:  acc,
		products:  prods,
		documents: documents.New(db, store),
		orders:    orders.New(db, l),
		catalog:   catalog.New(acc, prods),
	}
}
