package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/codeloom/codeloom/config"
	"github.com/codeloom/codeloom/graph"
	"github.com/codeloom/codeloom/query"
)

// loadGraph loads the configured graph document (or an explicit path) and
// returns a snapshot.
func loadGraph(cfg *config.Config, path string) (*graph.Graph, error) {
	if path == "" {
		path = cfg.GraphPath()
	}
	store := graph.NewStore(nil)
	if err := store.LoadFile(path); err != nil {
		return nil, err
	}
	return store.Snapshot()
}

func validateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [graph.json]",
		Short: "Validate a graph document against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts)
			if err != nil {
				return err
			}
			path := cfg.GraphPath()
			if len(args) == 1 {
				path = args[0]
			}

			store := graph.NewStore(nil)
			if err := store.LoadFile(path); err != nil {
				var schemaErr *graph.SchemaError
				if errors.As(err, &schemaErr) {
					for _, v := range schemaErr.Violations {
						fmt.Fprintln(cmd.ErrOrStderr(), v.String())
					}
				}
				return err
			}

			g, err := store.Snapshot()
			if err != nil {
				return err
			}
			fmt.Printf("%s: valid (%d nodes, %d edges)\n", path, len(g.Nodes), len(g.Edges))
			return nil
		},
	}
}

func overviewCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Summarize the graph: counts, entry points, hotspots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts)
			if err != nil {
				return err
			}
			g, err := loadGraph(cfg, "")
			if err != nil {
				return err
			}
			return printJSON(query.NewEngine(g).Overview())
		},
	}
}

func queryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run analytical queries against the graph",
	}

	withEngine := func(run func(*query.Engine, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts)
			if err != nil {
				return err
			}
			g, err := loadGraph(cfg, "")
			if err != nil {
				return err
			}
			return run(query.NewEngine(g), args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "trace <endpoint-id>",
			Short: "Walk the execution chain from an entry point",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(e *query.Engine, args []string) error {
				tr, err := e.Trace(args[0])
				if err != nil {
					return err
				}
				return printJSON(tr)
			}),
		},
		&cobra.Command{
			Use:   "contract <collection-id>",
			Short: "Show who reads and writes a collection",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(e *query.Engine, args []string) error {
				c, err := e.Contract(args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			}),
		},
		&cobra.Command{
			Use:   "uses <node-id>",
			Short: "List everything that references a node",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(e *query.Engine, args []string) error {
				edges, err := e.Uses(args[0])
				if err != nil {
					return err
				}
				return printJSON(edges)
			}),
		},
		&cobra.Command{
			Use:   "does <node-id>",
			Short: "List everything a node does",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(e *query.Engine, args []string) error {
				edges, err := e.Does(args[0])
				if err != nil {
					return err
				}
				return printJSON(edges)
			}),
		},
		&cobra.Command{
			Use:   "risks",
			Short: "Show the external API and env-var risk surface",
			Args:  cobra.NoArgs,
			RunE: withEngine(func(e *query.Engine, args []string) error {
				return printJSON(e.Risks())
			}),
		},
		&cobra.Command{
			Use:   "hotspots [limit]",
			Short: "Rank nodes by connectivity",
			Args:  cobra.MaximumNArgs(1),
			RunE: withEngine(func(e *query.Engine, args []string) error {
				limit := 10
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid limit %q: %w", args[0], err)
					}
					limit = n
				}
				return printJSON(e.Hotspots(limit))
			}),
		},
		&cobra.Command{
			Use:   "dead",
			Short: "List nodes nothing references",
			Args:  cobra.NoArgs,
			RunE: withEngine(func(e *query.Engine, args []string) error {
				return printJSON(e.Dead())
			}),
		},
		&cobra.Command{
			Use:   "reconcile <feature-scope>",
			Short: "Assemble the synthesis report for a feature area",
			Args:  cobra.ExactArgs(1),
			RunE: withEngine(func(e *query.Engine, args []string) error {
				return printJSON(e.Reconcile(args[0]))
			}),
		},
	)

	return cmd
}
