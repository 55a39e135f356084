// Command echallan runs the violation-to-challan service.
package main

import (
	"fmt"
	"os"

	"github.com/irisdrone/echallan/internal/config"
	"github.com/irisdrone/echallan/internal/logging"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "echallan",
		Short:         "Traffic violation to e-challan service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file (default ./config.yaml)")

	rootCmd.AddCommand(
		serveCommand(a),
		seedCommand(a),
		migrateCommand(a),
	)
	return rootCmd
}

// initialize loads .env, then configuration, then sets up logging.
func (a *app) initialize() error {
	envErr := godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if envErr != nil {
		a.log.Debug("No .env file found, using environment variables")
	}
	return nil
}
