// Package cmd provides the glaze command-line interface.
//
// Configuration resolves from multiple sources with clear precedence:
//  1. Command-line flags (--port, --host, etc.) - highest priority
//  2. GLAZE_CONFIG_FILE environment variable - custom config file path
//  3. Individual environment variables (GLAZE_SERVER_PORT, etc.)
//  4. Configuration file (.glaze.yml) - lowest priority
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glazeware/glaze/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "glaze",
	Short: "A component-based HTML server with embedded data scripts",
	Long: `Glaze serves pages composed from reusable components. Each component is
a directory holding a template (*.html) and an optional data script (*.js)
whose load and action_* functions produce the template's context.

Quick Start:
  glaze init                      Scaffold a new project
  glaze serve                     Start the development server
  glaze list                      List discovered components and routes

Pages under the pages tree map directly onto routes: pages/users/[id].html
serves /users/{id}. Editing a component or page triggers a debounced
rebuild and a live reload of connected browsers.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .glaze.yml, can also use GLAZE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig wires viper to flags, environment, and the config file.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("GLAZE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".glaze")
	}

	viper.SetEnvPrefix("GLAZE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	// A missing or malformed config file degrades to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the effective configuration for a subcommand run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
