package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/app"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/services"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "studybridge",
		Short:         "Study platform API and administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (env vars override)")

	root.AddCommand(
		serveCmd(&cfgPath),
		migrateCmd(&cfgPath),
		seedCmd(&cfgPath),
		adminCmd(&cfgPath),
		provisionCmd(&cfgPath),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp opens the base app, runs migrations and hands it to fn.
func withApp(cfgPath string, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Migrate(); err != nil {
		return err
	}
	return fn(context.Background(), a)
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the study API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := app.NewStudy(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Migrate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx, cfg.Port)
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app.App) error {
				a.Log.Info("migrations applied")
				return nil
			})
		},
	}
}

func seedCmd(cfgPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load survey templates, tasks, the dataset catalog and participants from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app.App) error {
				path := file
				if path == "" {
					path = a.Cfg.SeedFile
				}
				seed, err := services.LoadSeedFile(path)
				if err != nil {
					return err
				}
				report, err := a.Services.Seed.Apply(ctx, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s: %d surveys, %d tasks, %d tables, %d new participants\n",
					path, report.Surveys, report.Tasks, report.Tables, report.Participants)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (default SEED_FILE)")
	return cmd
}

func adminCmd(cfgPath *string) *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Manage admin accounts"}

	var email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			return withApp(*cfgPath, func(ctx context.Context, a *app.App) error {
				u, err := a.Services.Admin.CreateAdmin(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "admin email")
	create.Flags().StringVar(&password, "password", "", "admin password (default ADMIN_PASSWORD)")
	_ = create.MarkFlagRequired("email")

	var resetEmail, resetPassword string
	reset := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password for an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resetPassword == "" {
				resetPassword = os.Getenv("ADMIN_PASSWORD")
			}
			return withApp(*cfgPath, func(ctx context.Context, a *app.App) error {
				if err := a.Services.Admin.ResetPassword(ctx, resetEmail, resetPassword); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", resetEmail)
				return nil
			})
		},
	}
	reset.Flags().StringVar(&resetEmail, "email", "", "admin email")
	reset.Flags().StringVar(&resetPassword, "password", "", "new password (default ADMIN_PASSWORD)")
	_ = reset.MarkFlagRequired("email")

	admin.AddCommand(create, reset)
	return admin
}

func provisionCmd(cfgPath *string) *cobra.Command {
	var (
		count     int
		codes     string
		variants  string
		sidePanel bool
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create participants with access codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := services.ProvisionInput{
				AccessCodes:      splitCSV(codes),
				Count:            count,
				Variants:         splitCSV(variants),
				SidePanelEnabled: sidePanel,
			}
			return withApp(*cfgPath, func(ctx context.Context, a *app.App) error {
				created, err := a.Services.Admin.ProvisionParticipants(ctx, in)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ACCESS CODE\tVARIANT\tSIDE PANEL\tID")
				for _, p := range created {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.AccessCode, p.AssignedVariant, p.SidePanelEnabled, p.ID)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of generated access codes")
	cmd.Flags().StringVar(&codes, "codes", "", "comma separated access codes to use instead of generating")
	cmd.Flags().StringVar(&variants, "variants", "", "comma separated task variants, assigned round-robin")
	cmd.Flags().BoolVar(&sidePanel, "side-panel", false, "enable the side panel for these participants")
	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
