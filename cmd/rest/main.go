package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grant-assistant-be/internal/bootstrap"
	"grant-assistant-be/internal/config"
	"grant-assistant-be/internal/server"
	"grant-assistant-be/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(tracer.Config{
		ServiceName: "grant-assistant-backend",
		Enabled:     cfg.App.OtelEnabled,
		Endpoint:    cfg.App.OtelEndpoint,
		SampleRatio: cfg.App.OtelSampleRatio,
	})
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Restore persisted state
	sess, err := container.ProposalService.Start(ctx)
	if err != nil {
		log.Fatalf("Unable to start session: %v", err)
	}
	container.Logger.Info("Main", "Session ready", map[string]interface{}{"session_id": sess.Id, "expires_at": sess.ExpiresAt})

	// 5. Start Background Services
	if err := container.ConsumerService.Consume(ctx); err != nil {
		container.Logger.Error("Main", "Activity consumer failed to start", map[string]interface{}{"error": err.Error()})
	}
	go container.WebSocketHub.Run(ctx)
	if cfg.Draft.AutoSaveInterval > 0 {
		go runAutoSave(ctx, container, cfg.Draft.AutoSaveInterval)
	}

	// 6. Initialize Server
	srv := server.New(cfg, container)
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			container.Logger.Error("Main", "Shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// 7. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}

// runAutoSave writes the autosave slot on a fixed interval. Ticks where the
// context did not move since the last write are skipped.
func runAutoSave(ctx context.Context, c *bootstrap.Container, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated := c.ProposalService.GetContext(ctx).UpdatedAt
			if !updated.After(last) {
				continue
			}
			if _, err := c.DraftService.AutoSave(ctx); err != nil {
				c.Logger.Error("AutoSave", "Interval autosave failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			last = updated
		}
	}
}
