package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"fleet-tracking-system/api"
	"fleet-tracking-system/cache"
	"fleet-tracking-system/config"
	"fleet-tracking-system/events"
	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/fleet"
	"fleet-tracking-system/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fleettracker",
	Short: "Live bus fleet tracking service",
	Long: `fleettracker serves the live vehicle map, route search, driver trip
sharing and the admin dashboard for a simulated bus fleet.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("tick-interval", 10*time.Second, "Interval between simulated position updates")
	serveCmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")
	serveCmd.Flags().String("fixtures", "", "YAML fixture file replacing the built-in demo fleet")
	serveCmd.Flags().Int("demo-vehicles", 0, "Number of extra generated demo vehicles")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("simulation.tick_interval", serveCmd.Flags().Lookup("tick-interval"))
	viper.BindPFlag("log.level", serveCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("fixtures.file", serveCmd.Flags().Lookup("fixtures"))
	viper.BindPFlag("simulation.demo_vehicles", serveCmd.Flags().Lookup("demo-vehicles"))

	rootCmd.AddCommand(serveCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadFixture(cfg *config.Config, seed int64, now time.Time) (*fixtures.Fixture, error) {
	fx := fixtures.Default(now)
	if cfg.Fixtures.File != "" {
		var err error
		if fx, err = fixtures.Load(cfg.Fixtures.File, now); err != nil {
			return nil, err
		}
	}
	fx.Generate(cfg.Simulation.DemoVehicles, seed, now)
	return fx, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, logOut := logging.New(cfg.Log)
	slog.SetDefault(logger)

	now := time.Now()
	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	fx, err := loadFixture(cfg, seed, now)
	if err != nil {
		return err
	}
	store := fleet.NewStore(fx.Vehicles, fleet.NewJitterSource(cfg.Simulation.Jitter, seed), fleet.WithLogger(logger))

	var positions api.NearbyFinder
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis, 10, 3*time.Second, logger)
		if err != nil {
			logger.Warn("redis position cache disabled", slog.String("error", err.Error()))
		} else {
			defer rdb.Close()
			pc := cache.NewPositionCache(rdb, cfg.Redis.TTL, logger)
			pc.Listener(ctx)(store.Snapshot())
			defer store.Subscribe(pc.Listener(ctx))()
			positions = pc
		}
	}

	var publisher events.Publisher = events.LogPublisher{Logger: logger}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Warn("kafka publisher disabled", slog.String("error", err.Error()))
		} else {
			publisher = kp
		}
	}
	defer publisher.Close()

	srv, err := api.NewServer(api.Deps{
		Config:    cfg,
		Logger:    logger,
		Fixture:   fx,
		Store:     store,
		Publisher: publisher,
		Positions: positions,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(logOut),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.Run(ctx, cfg.Simulation.TickInterval)
	})
	g.Go(func() error {
		logger.Info("server started", slog.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
