package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/config"
	"github.com/plate-spinner/plate-spinner/internal/ingest"
	"github.com/plate-spinner/plate-spinner/internal/mock"
	"github.com/plate-spinner/plate-spinner/internal/monitor"
	"github.com/plate-spinner/plate-spinner/internal/session"
	"github.com/plate-spinner/plate-spinner/internal/store"
	"github.com/plate-spinner/plate-spinner/internal/summarizer"
	"github.com/plate-spinner/plate-spinner/internal/ws"
	"github.com/spf13/cobra"
)

var (
	daemonMock bool
	daemonPort int
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the daemon in the foreground",
	Long: `Run the plate-spinner daemon in the foreground.

The daemon listens on loopback for hook events, stores session status in
SQLite, reconciles statuses whose closing event never arrived, and pushes
change notifications to WebSocket viewers. Other sp commands start it in
the background on demand.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().BoolVar(&daemonMock, "mock", false, "Feed scripted demo sessions")
	daemonCmd.Flags().IntVar(&daemonPort, "port", 0, "Override server port")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonPort > 0 {
		cfg.Server.Port = daemonPort
	}

	st, err := store.Open(paths.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	broadcaster := ws.NewBroadcaster(cfg.Broadcast.Buffer)
	st.SetNotifier(broadcaster)

	apiKey := func() string {
		key, _ := config.APIKey(paths.AuthFile())
		return key
	}
	var sum ingest.Summarizer
	if cfg.Summarizer.Enabled {
		sum = summarizer.New(summarizer.Config{
			Model:   cfg.Summarizer.Model,
			BaseURL: cfg.Summarizer.BaseURL,
			Timeout: cfg.Summarizer.Timeout,
		}, apiKey)
	}
	events := ingest.NewHandler(st, sum, ingest.Config{
		Cadence: cfg.Summarizer.Cadence,
		Timeout: cfg.Summarizer.Timeout,
	})

	reconciler := monitor.NewReconciler(st, monitor.Config{
		Interval:        cfg.Monitor.Interval,
		WakeGrace:       cfg.Monitor.WakeGrace,
		SleepMultiplier: cfg.Monitor.SleepMultiplier,
		RunningTimeout:  cfg.Monitor.RunningTimeout,
		Policy: session.StalenessPolicy{
			Threshold:        cfg.Monitor.StalenessThreshold,
			RunningThreshold: cfg.Monitor.RunningStaleAfter,
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := ws.NewServer(ws.Options{
		Store:            st,
		Broadcaster:      broadcaster,
		Events:           events,
		Reconciler:       reconciler,
		Banner:           paths.Banner(),
		Version:          version,
		APIKeyConfigured: func() bool { return apiKey() != "" },
		HooksInstalled:   func() bool { return config.HooksInstalled(paths.ClaudeSettings) },
		Shutdown:         cancel,
	})
	httpServer := ws.NewHTTPServer(cfg.Server.Host, cfg.Server.Port, server.Handler())

	go reconciler.Start(ctx)

	if daemonMock {
		log.Println("Starting in mock mode")
		mock.NewGenerator(events, 0).Start(ctx)
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}()

	log.Printf("plate-spinner %s, database %s", version, paths.DBPath())
	if err := ws.ListenAndServe(httpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	events.Wait()
	return nil
}
