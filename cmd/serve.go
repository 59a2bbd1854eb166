package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geo-refresh/core/loader"
	"geo-refresh/core/logger"
	"geo-refresh/core/middleware/auth"
	"geo-refresh/core/middleware/rayid"
	"geo-refresh/feature/changesets"
	"geo-refresh/feature/refresh"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// pruneInterval is how often the server removes expired changesets.
const pruneInterval = 24 * time.Hour

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the refresh API server",
	Long:  `Starts the HTTP server and initializes all enabled features.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		logg := rt.logger
		defer logg.Sync()
		cfg := rt.cfg

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		csets := changesets.NewFeature(logg, rt.fs, cfg.Refresh.ChangesetDir, cfg.Refresh.ArtifactRetentionDays, rt.archive)
		mgr := loader.NewManager()
		mgr.Register(refresh.NewFeature(rt.refresh))
		mgr.Register(csets)

		// RayID first so every later entry carries it.
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		if timeout := cfg.Server.RefreshTimeout(); timeout > 0 {
			app.Use(func(c *fiber.Ctx) error {
				ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
				defer cancel()
				c.SetUserContext(ctx)
				return c.Next()
			})
		}

		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"status": "ok"})
		})

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Skip: []string{"/health"}}))

		loaded, err := mgr.LoadAll(app)
		if err != nil {
			return err
		}
		logg.Info("Features loaded", zap.Strings("features", loaded), zap.Int("jobs", len(rt.jobs.Jobs)))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if csets.IsEnabled() {
			go pruneLoop(ctx, logg, changesets.NewService(logg, rt.fs, cfg.Refresh.ChangesetDir, cfg.Refresh.ArtifactRetentionDays, rt.archive))
		}

		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(cfg.Server.Address()); err != nil {
				logg.Error("Server failed", zap.Error(err))
				stop()
			}
		}()

		<-ctx.Done()
		logg.Info("Shutting down server...")
		return app.Shutdown()
	},
}

// pruneLoop removes expired changesets once at start and then every pruneInterval.
func pruneLoop(ctx context.Context, logg *zap.Logger, svc *changesets.Service) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		if _, err := svc.Prune(ctx, 0); err != nil {
			logg.Warn("Changeset pruning failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
