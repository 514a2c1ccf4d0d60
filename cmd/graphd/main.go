package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/graphkeep/graphkeep/pkg/broadcaster"
	"github.com/graphkeep/graphkeep/pkg/clock"
	"github.com/graphkeep/graphkeep/pkg/config"
	"github.com/graphkeep/graphkeep/pkg/eventstore"
	"github.com/graphkeep/graphkeep/pkg/graphstore"
	"github.com/graphkeep/graphkeep/pkg/legacy"
	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/metrics"
	"github.com/graphkeep/graphkeep/pkg/snapshot"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "graphd",
	Short:   "graphd - knowledge graph store daemon",
	Long:    "graphd hosts a single Graph Store: entities and relations with event-sourced or legacy persistence, live subscription, and bounded inference over relations.",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to graphd.yaml (defaults applied if omitted)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildStore wires up a graphstore.Store from cfg: fs, eventstore/legacy,
// snapshot directory, and broadcaster, matching the Collaborator
// interfaces table (clock, atomic fs primitives, broadcast sink).
func buildStore(cfg config.Config) (*graphstore.Store, *eventstore.Store, *broadcaster.Broadcaster, error) {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	c := clock.Real{}
	bc := broadcaster.New(cfg.HistorySize, cfg.BroadcastCapacity)

	storeCfg := graphstore.Config{
		Fs:          fs,
		Broadcast:   bc,
		Clock:       c,
		DefaultUser: cfg.CurrentUser,
	}

	var events *eventstore.Store
	if cfg.EventSourcingEnabled {
		snapDir := cfg.DataDir + "/snapshots"
		if err := fs.MkdirAll(snapDir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create snapshot dir: %w", err)
		}
		snap := snapshot.New(fs, snapDir, c)
		logPath := cfg.DataDir + "/events.jsonl"

		events = eventstore.New(eventstore.Config{
			Fs:                fs,
			LogPath:           logPath,
			Clock:             c,
			Snapshot:          snap,
			SnapshotThreshold: cfg.SnapshotThreshold,
		})

		storeCfg.Mode = graphstore.ModeEventSourcing
		storeCfg.Events = events
		storeCfg.Snapshot = snap
		storeCfg.EventLogPath = logPath
	} else {
		storeCfg.Mode = graphstore.ModeLegacy
		storeCfg.Legacy = legacy.New(fs, cfg.MemoryFilePath)
	}

	store := graphstore.New(storeCfg)
	if err := store.Initialize(); err != nil {
		return nil, nil, nil, fmt.Errorf("initialize graph store: %w", err)
	}
	return store, events, bc, nil
}

func eventstoreStatus(cfg config.Config) string {
	if cfg.EventSourcingEnabled {
		return "ready"
	}
	return "ready (legacy mode, no event log)"
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the graph store daemon",
	Long:  "Loads persisted state, starts the metrics/health HTTP endpoint, and blocks until SIGINT/SIGTERM, snapshotting on the way out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, events, bc, err := buildStore(cfg)
		if err != nil {
			return err
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("graphstore", true, "ready")
		metrics.RegisterComponent("eventstore", true, eventstoreStatus(cfg))

		// Pass a nil interface, not a typed-nil *eventstore.Store, when
		// legacy mode leaves the event store unwired.
		var eventLog metrics.EventLogStats
		if events != nil {
			eventLog = events
		}
		collector := metrics.NewCollector(store, eventLog, bc)
		collector.Start(10 * time.Second)
		defer collector.Stop()

		addr, _ := cmd.Flags().GetString("addr")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("graphd: metrics server error")
			}
		}()
		log.Logger.Info().Str("addr", addr).Msg("graphd: metrics endpoint ready")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Logger.Info().Msg("graphd: shutting down")

		if err := store.CreateSnapshot(cfg.ArchiveOldEvents); err != nil {
			log.Logger.Warn().Err(err).Msg("graphd: snapshot on shutdown failed")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:9090", "Metrics/health HTTP listen address")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take a snapshot of the current graph and exit",
	Long:  "Loads persisted state, writes one snapshot, and optionally rotates the event log. Intended for cron-driven maintenance rather than the running daemon.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.EventSourcingEnabled {
			return fmt.Errorf("snapshot: event_sourcing_enabled is false, nothing to snapshot")
		}

		store, _, _, err := buildStore(cfg)
		if err != nil {
			return err
		}
		if err := store.CreateSnapshot(cfg.ArchiveOldEvents); err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}
		fmt.Println("✓ Snapshot written")
		return nil
	},
}
