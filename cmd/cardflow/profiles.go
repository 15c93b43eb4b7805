package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/internal/database"
	"github.com/BaSui01/cardflow/internal/store"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage backend profiles in the configuration store",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backend profiles (API keys masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(s *store.Store) error {
			profiles, err := s.ListProfiles(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFAMILY\tCAPABILITY\tMODEL\tENABLED\tDEFAULT\tAPI KEY")
			for i := range profiles {
				p := &profiles[i]
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%t\t%s\n",
					p.ID, p.Name, p.Family, p.Capability, p.Model, p.Enabled, p.IsDefault, p.MaskedAPIKey())
			}
			return w.Flush()
		})
	},
}

var profilesImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Import profiles, prompt templates and style tags from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seed, err := store.LoadSeed(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(s *store.Store) error {
			n, err := s.Import(cmd.Context(), seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d profiles, %d templates, %d styles\n",
				n, len(seed.Templates), len(seed.Styles))
			return nil
		})
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd, profilesImportCmd)
	rootCmd.AddCommand(profilesCmd)
}

// withStore 打开数据库并确保表结构存在
func withStore(ctx context.Context, fn func(*store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(ctx, cfg.Database, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	s := store.New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	return fn(s)
}
