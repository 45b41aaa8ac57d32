package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/codeloom/codeloom/agent"
	"github.com/codeloom/codeloom/config"
	"github.com/codeloom/codeloom/drift"
	"github.com/codeloom/codeloom/graph"
	"github.com/codeloom/codeloom/orchestrator"
	"github.com/codeloom/codeloom/plan"
	"github.com/codeloom/codeloom/query"
)

// newProvider builds the configured agent provider.
func newProvider(cfg *config.Config) (agent.Provider, error) {
	return agent.New(cfg.Agents.Provider, agent.Config{
		URL:            cfg.Agents.URL,
		SubjectPrefix:  cfg.Agents.SubjectPrefix,
		RequestTimeout: cfg.Agents.RequestTimeout,
	})
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func scanCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a full project scan and write the graph document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer provider.Close()

			ctx, cancel := signalContext()
			defer cancel()

			project := filepath.Base(cfg.Repo.Path)
			started := time.Now()
			result, err := provider.Scan(ctx, agent.ScanRequest{Project: project})
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}

			store := graph.NewStore(logger)
			err = store.LoadDocument(graph.Document{
				Metadata: graph.Metadata{
					Project:                 project,
					GeneratedAt:             time.Now().UTC(),
					ScannerVersion:          result.ScannerVersion,
					TotalFilesAnalyzed:      result.FilesAnalyzed,
					AnalysisDurationSeconds: time.Since(started).Seconds(),
				},
				Nodes: result.Nodes,
				Edges: result.Edges,
			})
			if err != nil {
				return fmt.Errorf("scanner output rejected: %w", err)
			}

			path := cfg.GraphPath()
			if err := store.SaveFile(path); err != nil {
				return err
			}
			fmt.Printf("%s: %d nodes, %d edges\n", path, len(result.Nodes), len(result.Edges))
			return nil
		},
	}
}

func planCmd(opts *cliOptions) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "plan <goal>",
		Short: "Ask the planner for a phased build plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(opts)
			if err != nil {
				return err
			}
			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer provider.Close()

			ctx, cancel := signalContext()
			defer cancel()

			req := agent.PlanRequest{
				Project:      filepath.Base(cfg.Repo.Path),
				Goal:         args[0],
				ProjectRules: cfg.Orchestrator.ProjectRules,
			}

			// Attach the feature synthesis when a scope is given and a graph
			// exists; the planner works blind otherwise.
			if scope != "" {
				g, err := loadGraph(cfg, "")
				if err != nil {
					return fmt.Errorf("load graph for scope %q: %w", scope, err)
				}
				req.Synthesis = query.NewEngine(g).Reconcile(scope)
			}

			p, err := provider.Plan(ctx, req)
			if err != nil {
				return err
			}

			path := filepath.Join(cfg.PlansDir(), p.ID+".json")
			if err := plan.SaveFile(p, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "plan written to %s\n", path)
			return printJSON(p)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Feature scope to attach a synthesis report for")
	return cmd
}

func runCmd(opts *cliOptions) *cobra.Command {
	var checkDrift bool

	cmd := &cobra.Command{
		Use:   "run <plan.json>",
		Short: "Execute a build plan through the builder/validator agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}

			p, err := plan.LoadFile(args[0])
			if err != nil {
				return err
			}

			store := graph.NewStore(logger)
			if err := store.LoadFile(cfg.GraphPath()); err != nil {
				return err
			}
			baseline, err := store.Snapshot()
			if err != nil {
				return err
			}

			provider, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer provider.Close()

			o, err := orchestrator.New(orchestrator.Config{
				Store:         store,
				Builder:       provider,
				Validator:     provider,
				Scanner:       provider,
				MaxConcurrent: cfg.Orchestrator.MaxConcurrent,
				ProjectRules:  cfg.Orchestrator.ProjectRules,
				Logger:        logger,
				Metrics:       orchestrator.NewMetrics(prometheus.DefaultRegisterer),
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			report, err := o.Run(ctx, p)
			if err != nil {
				return err
			}

			// Persist the updated graph and the plan's final task states.
			if err := store.SaveFile(cfg.GraphPath()); err != nil {
				return err
			}
			if err := plan.SaveFile(p, args[0]); err != nil {
				return err
			}

			if err := printJSON(report); err != nil {
				return err
			}

			if checkDrift {
				current, err := store.Snapshot()
				if err != nil {
					return err
				}
				driftReport := drift.NewDetector(logger).Compare(baseline, current)
				if _, err := drift.NewHistory(cfg.HistoryDir(), logger).Write(driftReport); err != nil {
					return err
				}
				if driftReport.HasBlocks() {
					return fmt.Errorf("drift check failed: %d blocking finding(s)", len(driftReport.Blocks))
				}
			}

			if !report.Success() {
				return fmt.Errorf("run finished with %d blocked task(s)", len(report.Blocked))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkDrift, "check-drift", true, "Diff the graph against the pre-run baseline afterwards")
	return cmd
}

func watchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the graph document and report reloads until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}

			store := graph.NewStore(logger)
			if err := store.LoadFile(cfg.GraphPath()); err != nil {
				return err
			}

			watcher, err := graph.NewWatcher(store, graph.WatcherConfig{
				Path:          cfg.GraphPath(),
				DebounceDelay: cfg.Watch.Debounce,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events():
					if !ok {
						return nil
					}
					if event.Err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", event.Err)
						continue
					}
					fmt.Printf("reloaded %s: %d nodes, %d edges\n",
						event.Path, len(event.Graph.Nodes), len(event.Graph.Edges))
				}
			}
		},
	}
}
