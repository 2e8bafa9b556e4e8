package main

import (
	"fmt"
	"os"

	"github.com/RichardoC/aura/internal/config"
	"github.com/RichardoC/aura/internal/logging"
	"github.com/RichardoC/aura/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	verbose  bool
	plain    bool
	kindFlag string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "AURA student wellness and study assistant",
	Long: `aura talks to the AURA chat backend and keeps your conversations locally.

Conversations are stored per kind (mental, study, generic) and survive restarts.
Run "aura chat" for an interactive session or "aura send" for a single message.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func selectedKind() (models.Kind, error) {
	return models.ParseKind(kindFlag)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "aura.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Print replies without markdown rendering")
	rootCmd.PersistentFlags().StringVarP(&kindFlag, "kind", "k", string(models.KindMental), "Chat kind: mental, study or generic")

	rootCmd.AddCommand(sendCmd, chatCmd, historyCmd, filesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
