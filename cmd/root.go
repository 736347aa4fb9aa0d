// Package cmd defines and implements the CLI commands for the bindery executable.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nfields/bindery/internal/archive"
)

var (
	cfgFile string
	debug   bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bindery",
		Short: "Archives paginated web publications into per-chapter PDFs.",
		Long: `bindery walks a book's chapter listing, follows each chapter through
its paginated parts, downloads the page images, and binds every chapter
into a standalone PDF with a navigable index.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bindery.yaml)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose development logging")

	cmd.AddCommand(newArchiveCmd())

	return cmd
}

// initConfig seeds viper defaults, binds the BINDERY_* environment, and reads
// the optional config file.
func initConfig() {
	v := viper.GetViper()
	archive.SetDefaults(v)

	v.SetEnvPrefix("BINDERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".bindery")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
