package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/glazeware/glaze/internal/logging"
	"github.com/glazeware/glaze/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server",
	Long: `Start the glaze server: discover components, compile their scripts,
build the route table from the pages tree, and serve with file watching
and live reload.

Examples:
  glaze serve                     # Serve on the configured host and port
  glaze serve -p 3000             # Override the port
  glaze serve --no-watch          # Disable file watching`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "localhost", "host to bind")
	serveCmd.Flags().IntP("port", "p", 8080, "port to bind")
	serveCmd.Flags().String("components", "./components", "component tree root")
	serveCmd.Flags().String("pages", "./pages", "pages tree root")
	serveCmd.Flags().Int("workers", 4, "script execution workers")
	serveCmd.Flags().Bool("no-watch", false, "disable file watching")
	serveCmd.Flags().Bool("no-reload", false, "disable browser live reload")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("paths.components", serveCmd.Flags().Lookup("components"))
	_ = viper.BindPFlag("paths.pages", serveCmd.Flags().Lookup("pages"))
	_ = viper.BindPFlag("pool.workers", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Watch.Enabled = false
	}
	if noReload, _ := cmd.Flags().GetBool("no-reload"); noReload {
		cfg.Development.HotReload = false
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
