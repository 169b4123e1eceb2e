package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glazeware/glaze/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [directory]",
	Aliases: []string{"i"},
	Short:   "Scaffold a new glaze project",
	Long: `Create a minimal glaze project: a .glaze.yml configuration file, a
sample counter component, and an index page that renders it.

Examples:
  glaze init                      # Scaffold into the current directory
  glaze init myapp                # Scaffold into ./myapp`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "overwrite existing files")
}

const initCounterTemplate = `<div class="counter">
  <p>Count: {{.count}}</p>
  <form method="post">
    <input type="hidden" name="component" value="counter">
    <button name="action" value="increment">+1</button>
  </form>
</div>
`

const initCounterScript = `function load(request, session, db, props) {
  return { count: session.count || 0 };
}

function action_increment(request, session, db, fields) {
  session.count = (session.count || 0) + 1;
  return { count: session.count };
}
`

const initIndexPage = `<!doctype html>
<html>
  <head><title>glaze</title></head>
  <body>
    <h1>Hello from glaze</h1>
    {{component "counter"}}
  </body>
</html>
`

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	cfg := config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 8080, RequestTimeout: 10 * time.Second},
		Paths:  config.PathsConfig{Components: "./components", Pages: "./pages"},
		Pool: config.PoolConfig{
			Workers:        4,
			Dispatch:       "round_robin",
			QueueDepth:     1,
			AcquireTimeout: 250 * time.Millisecond,
			Retries:        3,
			Backoff:        50 * time.Millisecond,
		},
		Watch:       config.WatchConfig{Enabled: true, Debounce: 100 * time.Millisecond},
		Development: config.DevelopmentConfig{HotReload: true, ErrorOverlay: true},
		Log:         config.LogConfig{Level: "info", Format: "text"},
	}
	cfgYAML, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	files := []struct {
		rel     string
		content []byte
	}{
		{".glaze.yml", cfgYAML},
		{"components/counter/counter.html", []byte(initCounterTemplate)},
		{"components/counter/counter.js", []byte(initCounterScript)},
		{"pages/index.html", []byte(initIndexPage)},
	}

	for _, f := range files {
		rel, content := f.rel, f.content
		path := filepath.Join(root, filepath.FromSlash(rel))
		if !force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return err
		}
		fmt.Println("created", path)
	}

	fmt.Println("\nNext steps:")
	if root != "." {
		fmt.Printf("  cd %s\n", root)
	}
	fmt.Println("  glaze serve")
	return nil
}
