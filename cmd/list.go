package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glazeware/glaze/internal/logging"
	"github.com/glazeware/glaze/internal/registry"
	"github.com/glazeware/glaze/internal/router"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List discovered components and page routes",
	Long: `Scan the component and pages trees and print what glaze would serve:
every component with its template and script, and every compiled route.

Examples:
  glaze list                      # Table output
  glaze list -f json              # JSON output
  glaze list -f yaml              # YAML output`,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, json, yaml)")
}

// listedComponent is the serialization shape for one component row.
type listedComponent struct {
	ID       string `json:"id" yaml:"id"`
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Script   string `json:"script,omitempty" yaml:"script,omitempty"`
}

// listedRoute is the serialization shape for one route row.
type listedRoute struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Page    string `json:"page" yaml:"page"`
}

type listing struct {
	Components []listedComponent `json:"components" yaml:"components"`
	Routes     []listedRoute     `json:"routes" yaml:"routes"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Discard()

	reg := registry.New(cfg.Paths.Components, logger)
	snap, err := reg.Rebuild()
	if err != nil {
		return fmt.Errorf("failed to scan components: %w", err)
	}

	rt := router.New(cfg.Paths.Pages, logger)
	if err := rt.Rebuild(); err != nil {
		return fmt.Errorf("failed to compile routes: %w", err)
	}

	var out listing
	for id, c := range snap.Components() {
		out.Components = append(out.Components, listedComponent{
			ID:       id,
			Template: c.TemplatePath,
			Script:   c.ScriptPath,
		})
	}
	sort.Slice(out.Components, func(i, j int) bool {
		return out.Components[i].ID < out.Components[j].ID
	})
	for _, route := range rt.Routes() {
		out.Routes = append(out.Routes, listedRoute{Pattern: route.Pattern, Page: route.Template})
	}

	switch strings.ToLower(listFormat) {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(out)
	case "table":
		return outputListTable(out)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", listFormat)
	}
}

func outputListTable(out listing) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "COMPONENT\tTEMPLATE\tSCRIPT")
	for _, c := range out.Components {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, orDash(c.Template), orDash(c.Script))
	}
	if len(out.Components) == 0 {
		fmt.Fprintln(w, "(none)\t\t")
	}

	fmt.Fprintln(w, "\nROUTE\tPAGE")
	for _, r := range out.Routes {
		fmt.Fprintf(w, "%s\t%s\n", r.Pattern, r.Page)
	}
	if len(out.Routes) == 0 {
		fmt.Fprintln(w, "(none)\t")
	}

	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
