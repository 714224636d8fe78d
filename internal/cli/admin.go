package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"medcanna/m/internal/accounts"
	"medcanna/m/internal/database"
	"medcanna/m/internal/ledger"
	"medcanna/m/internal/migrations"
	"medcanna/m/internal/products"
	"medcanna/m/internal/seed"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Connect(rootOpts.Config.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Run(db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", db.DriverName())
			return nil
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog-file>",
		Short: "Load products from a CSV or YAML file",
		Long: `Load products from a CSV or YAML file.

Products whose name already exists are skipped, so the command can be run
repeatedly. Opening stock is recorded as an "in" movement.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts.Config)
			if err != nil {
				return err
			}
			defer db.Close()
			svc := products.New(db, ledger.New(db, rootOpts.Config.LedgerMaxRetries))
			n, err := seed.LoadCatalog(cmd.Context(), svc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d product(s)\n", n)
			return nil
		},
	}
}

// NewCreateAdminCommand creates the create-admin command. Admin accounts
// cannot be registered over HTTP.
func NewCreateAdminCommand(rootOpts *RootOptions) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts.Config)
			if err != nil {
				return err
			}
			defer db.Close()
			user, err := accounts.New(db).CreateAdmin(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare stock counters against movement history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts.Config)
			if err != nil {
				return err
			}
			defer db.Close()
			found, err := ledger.New(db, rootOpts.Config.LedgerMaxRetries).Audit(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "stock is consistent with movement history")
				return nil
			}
			for _, d := range found {
				fmt.Fprintf(out, "product %d: counter %d, ledger %d\n", d.ProductID, d.StockQuantity, d.LedgerTotal)
			}
			return fmt.Errorf("%d product(s) disagree with their movement history", len(found))
		},
	}
}
