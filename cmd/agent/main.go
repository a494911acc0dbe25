package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/app"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "studyagent",
		Short:         "Agent runtime serving threads and runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (env vars override)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			a, err := app.NewAgent(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Migrate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx, cfg.AgentPort)
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
