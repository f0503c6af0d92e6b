package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hitcastor/snapshotter/internal/pipeline"
	"github.com/hitcastor/snapshotter/internal/scheduler"
	"github.com/hitcastor/snapshotter/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot service",
	Long:  "Start the scheduler, the queue worker and the health endpoint, and run until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	queue, err := scheduler.NewQueue(rt.cfg.RedisURL)
	if err != nil {
		return err
	}
	defer queue.Close()
	if err := queue.Ping(ctx); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}

	if err := queue.RegisterDaily(ctx, scheduler.DailySchedule{
		Region: rt.cfg.Region,
		At:     rt.cfg.ScheduleUTC,
	}); err != nil {
		return err
	}

	worker := scheduler.NewWorker(queue, func(ctx context.Context, job pipeline.Job) error {
		_, err := rt.pipe.Run(ctx, job)
		return err
	})
	trigger := scheduler.NewTrigger(queue)
	srv := server.New(rt.ledger, rt.cfg.Region, Version, rt.cfg.Port)

	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	errCh := make(chan error, 2)
	go func() { errCh <- trigger.Run(ctx) }()
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Println(color.GreenString("Snapshot service started (region %s, daily at %s UTC)",
		rt.cfg.Region, rt.cfg.ScheduleUTC))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	// The worker returns only after its in-flight job has; wait for the
	// drain before tearing anything down.
	if err := <-workerDone; err != nil && runErr == nil {
		runErr = err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down http server: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("service failed: %w", runErr)
	}
	fmt.Println(color.YellowString("Snapshot service stopped"))
	return nil
}
