package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/pipeline"
	"github.com/smazurov/castnode/internal/session"
)

// CreateTopologyCmd creates the topology command.
func CreateTopologyCmd() *cobra.Command {
	var engineName string
	var category string
	var sessionFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Print the media graph",
		Long: `Builds the pipeline on the selected engine, enters preview and prints every element and link. ` +
			`With --session the saved sources, overlay and outputs are restored first.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			cat, err := graph.ParseCategory(category)
			if err != nil {
				return err
			}
			eng, err := engine.Open(engineName)
			if err != nil {
				return fmt.Errorf("open engine %q (available: %v): %w", engineName, engine.Available(), err)
			}

			p, err := pipeline.New(eng, pipeline.Config{PreviewCategory: cat})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
			defer cancel()
			defer p.Close(context.Background())

			if sessionFile != "" {
				f, err := session.LoadFile(sessionFile)
				if err != nil {
					return err
				}
				if err := session.Restore(ctx, p, f, logging.GetLogger("session")); err != nil {
					fmt.Fprintln(os.Stderr, "restore:", err)
				}
			}
			if p.State() == pipeline.StateIdle {
				if err := p.EnterPreview(ctx, cat); err != nil {
					return err
				}
			}

			t, err := p.Topology(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}
			fmt.Fprint(c.OutOrStdout(), t.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&engineName, "engine", "e", "sim", "Media engine back-end")
	cmd.Flags().StringVar(&category, "category", string(graph.CategoryVideo), "Preview category (audio, video, audiovideo)")
	cmd.Flags().StringVarP(&sessionFile, "session", "s", "", "Session file to restore before printing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print nodes and edges as JSON")

	return cmd
}
