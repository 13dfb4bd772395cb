package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/witnz/rowdiff/internal/codec"
	"github.com/witnz/rowdiff/internal/config"
	"github.com/witnz/rowdiff/internal/consensus"
	"github.com/witnz/rowdiff/internal/hash"
	"github.com/witnz/rowdiff/internal/history"
	"github.com/witnz/rowdiff/internal/hostid"
	"github.com/witnz/rowdiff/internal/results"
	"github.com/witnz/rowdiff/internal/scheduler"
	"github.com/witnz/rowdiff/internal/sink"
	"github.com/witnz/rowdiff/internal/source"
	"github.com/witnz/rowdiff/internal/storage"
	"github.com/witnz/rowdiff/internal/verify"
)

var (
	cfgFile   string
	runStdout bool
)

var rootCmd = &cobra.Command{
	Use:           "rowdiff",
	Short:         "rowdiff - differential query result logger",
	Long:          `Runs scheduled queries, diffs each result set against the last one stored, and logs the changes`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "rowdiff.yaml", "config file path")
	runCmd.Flags().BoolVar(&runStdout, "stdout", false, "print the log item instead of appending it to the results log")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(verifyCmd)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Logger.SlogLevel(),
	}))
}

func openStorage(cfg *config.Config) (storage.Store, error) {
	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// localWriteAllowed rejects commands that would write history straight to
// the local store while raft owns it. Such a write never reaches the log,
// so followers miss it and a replay or snapshot restore undoes it.
func localWriteAllowed(cfg *config.Config, command string) error {
	if cfg.Raft.Enabled {
		return fmt.Errorf("%s writes the local store directly and cannot be used with raft.enabled", command)
	}
	return nil
}

// offlineNote is appended to commands that open the local store. bbolt
// holds an exclusive file lock, so they fail while the daemon runs.
const offlineNote = `

Opens the local store directly: stop the daemon first. With raft enabled
this shows this node's replicated copy.`

func openSink(cfg *config.Config, stdout bool) (sink.Sink, func() error, error) {
	if stdout || cfg.Logger.ResultsPath == config.StdoutPath {
		return sink.NewWriter(os.Stdout), func() error { return nil }, nil
	}
	f, err := sink.OpenFile(cfg.Logger.ResultsPath)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func toQuery(qc config.QueryConfig) (scheduler.Query, error) {
	mode, err := scheduler.ParseMode(qc.Mode)
	if err != nil {
		return scheduler.Query{}, err
	}
	return scheduler.Query{
		Name:     qc.Name,
		SQL:      qc.SQL,
		Interval: qc.IntervalDuration(),
		Mode:     mode,
	}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rowdiff v0.1.0")
		fmt.Println("Differential query result logger")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory and host identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		hostID, err := hostid.Resolve(cfg.Node.HostIdentifier, store)
		if err != nil {
			return fmt.Errorf("failed to resolve host identifier: %w", err)
		}

		fmt.Printf("Initialized rowdiff node: %s\n", cfg.Node.ID)
		fmt.Printf("Data directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("Storage: %s (%s)\n", cfg.Storage.Path, cfg.Storage.Backend)
		fmt.Printf("Host identifier: %s\n", hostID)

		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the query scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := newLogger(cfg)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		hostID, err := hostid.Resolve(cfg.Node.HostIdentifier, store)
		if err != nil {
			return fmt.Errorf("failed to resolve host identifier: %w", err)
		}

		var backend history.Backend = store
		if cfg.Raft.Enabled {
			node, err := consensus.NewNode(&consensus.NodeConfig{
				NodeID:       cfg.Node.ID,
				BindAddr:     cfg.Raft.BindAddr,
				DataDir:      cfg.Node.DataDir,
				Bootstrap:    cfg.Raft.Bootstrap,
				PeerAddrs:    cfg.Raft.PeerAddrs,
				ApplyTimeout: cfg.Raft.ApplyTimeoutDuration(),
			}, store, logger.With("component", "raft"))
			if err != nil {
				return fmt.Errorf("failed to create raft node: %w", err)
			}
			if err := node.Start(ctx); err != nil {
				return fmt.Errorf("failed to start raft node: %w", err)
			}
			defer node.Stop()

			backend = node
			fmt.Printf("Raft node started, leader: %s\n", node.Leader())
		} else {
			fmt.Println("Running in single-node mode (no Raft)")
		}

		out, closeSink, err := openSink(cfg, false)
		if err != nil {
			return err
		}
		defer closeSink()

		pg, err := source.NewPostgres(ctx, cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		defer pg.Close()

		hist := history.New(backend)
		checked, err := verify.NewVerifier(hist).VerifyAll()
		if err != nil {
			logger.Warn("startup verification skipped", "error", err)
		}
		for _, r := range checked {
			if !r.OK() {
				logger.Warn("stored history is corrupt", "query", r.Name, "error", r.Err)
			}
		}

		cycle, err := scheduler.NewCycle(&scheduler.CycleConfig{
			Source:         pg,
			History:        hist,
			Sink:           out,
			HostIdentifier: hostID,
			LogEmptyDiffs:  cfg.Logger.LogEmptyDiffs,
			Logger:         logger.With("component", "cycle"),
		})
		if err != nil {
			return err
		}

		queries := make([]scheduler.Query, 0, len(cfg.Queries))
		for _, qc := range cfg.Queries {
			q, err := toQuery(qc)
			if err != nil {
				return err
			}
			queries = append(queries, q)
			fmt.Printf("Scheduling query: %s (every %s, mode: %s)\n", q.Name, q.Interval, q.Mode)
		}

		sched, err := scheduler.New(cycle, queries, logger.With("component", "scheduler"))
		if err != nil {
			return err
		}

		sched.Start(ctx)
		fmt.Println("rowdiff node is running. Press Ctrl+C to stop.")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		sched.Stop()

		fmt.Println("rowdiff node stopped")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display stored history per query",
	Long:  "Display stored history per query." + offlineNote,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		hist := history.New(store)

		fmt.Printf("Node ID: %s\n", cfg.Node.ID)
		fmt.Printf("Data Directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("Results log: %s\n", cfg.Logger.ResultsPath)
		fmt.Printf("\nQueries:\n")

		for _, qc := range cfg.Queries {
			fmt.Printf("  - %s (every %s, mode: %s)\n", qc.Name, qc.Interval, qc.Mode)

			snap, found, err := hist.Get(qc.Name)
			switch {
			case err != nil:
				fmt.Printf("    Error: %v\n", err)
			case !found:
				fmt.Printf("    No results yet\n")
			default:
				fmt.Printf("    Epoch: %d\n", snap.Epoch)
				fmt.Printf("    Rows: %d\n", len(snap.Results))
				fmt.Printf("    Digest: %s\n", shortDigest(hash.TableDigest(snap.Results)))
			}
		}

		return nil
	},
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	if d == "" {
		return "(empty)"
	}
	return d
}

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Run a single cycle for one query",
	Long:  "Run a single cycle for one query." + offlineNote,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := localWriteAllowed(cfg, "run"); err != nil {
			return err
		}

		qc, ok := cfg.Query(args[0])
		if !ok {
			return fmt.Errorf("unknown query: %s", args[0])
		}
		q, err := toQuery(qc)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		hostID, err := hostid.Resolve(cfg.Node.HostIdentifier, store)
		if err != nil {
			return fmt.Errorf("failed to resolve host identifier: %w", err)
		}

		out, closeSink, err := openSink(cfg, runStdout)
		if err != nil {
			return err
		}
		defer closeSink()

		pg, err := source.NewPostgres(ctx, cfg.Database.ConnectionString())
		if err != nil {
			return err
		}
		defer pg.Close()

		cycle, err := scheduler.NewCycle(&scheduler.CycleConfig{
			Source:         pg,
			History:        history.New(store),
			Sink:           out,
			HostIdentifier: hostID,
			LogEmptyDiffs:  cfg.Logger.LogEmptyDiffs,
			Logger:         newLogger(cfg),
		})
		if err != nil {
			return err
		}

		item, err := cycle.Run(ctx, q)
		if err != nil {
			return err
		}
		if item == nil {
			fmt.Fprintf(os.Stderr, "%s: no changes\n", q.Name)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <query>",
	Short: "Print the stored snapshot for a query",
	Long:  "Print the stored snapshot for a query." + offlineNote,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, found, err := history.New(store).Get(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no history for query %s", args[0])
		}

		data, err := codec.EncodeSnapshot(snap)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <query>",
	Short: "Forget stored history so the next cycle is a first run",
	Long:  "Forget stored history so the next cycle is a first run." + offlineNote,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := localWriteAllowed(cfg, "reset"); err != nil {
			return err
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := history.New(store).Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Reset history for %s\n", args[0])
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.json> <new.json>",
	Short: "Diff two tables stored as JSON documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldTable, err := readTable(args[0])
		if err != nil {
			return err
		}
		newTable, err := readTable(args[1])
		if err != nil {
			return err
		}

		data, err := codec.EncodeDiff(results.ComputeDiff(oldTable, newTable))
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func readTable(path string) (results.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t, err := codec.DecodeTable(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return t, nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify [query]",
	Short: "Check stored history decodes and matches its digest",
	Long:  "Check stored history decodes and matches its digest." + offlineNote,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		v := verify.NewVerifier(history.New(store))

		var checked []verify.Result
		if len(args) > 0 {
			r, err := v.VerifyQuery(args[0])
			if err != nil {
				return err
			}
			checked = append(checked, r)
		} else {
			checked, err = v.VerifyAll()
			if err != nil {
				return err
			}
		}

		failed := 0
		for _, r := range checked {
			fmt.Printf("Verifying query: %s\n", r.Name)
			if r.OK() {
				fmt.Printf("  OK: epoch %d, %d rows, digest %s\n", r.Epoch, r.Rows, shortDigest(r.Digest))
			} else {
				failed++
				fmt.Printf("  FAILED: %v\n", r.Err)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d records failed verification", failed, len(checked))
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
