package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/internal/bootstrap"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/queue"
	"github.com/shashiranjanraj/vidorder/pkg/schedule"
)

var queueWorkersFlag int

// vidorder queue:work
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Start the queue worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if a.InProcessQueue() {
			logger.Warn("QUEUE_DRIVER=memory: this worker only sees jobs dispatched by itself; use redis to share a queue")
		}

		workers := queueWorkersFlag
		if workers < 1 {
			workers = config.QueueWorkers()
		}

		g, gctx := errgroup.WithContext(ctx)
		if rd, ok := a.Driver.(*queue.RedisDriver); ok {
			g.Go(func() error {
				rd.Promote(gctx)
				return nil
			})
		}
		g.Go(func() error {
			a.Queue.Run(gctx, workers)
			return nil
		})

		fmt.Printf("Queue worker started (%d workers). Press Ctrl+C to stop.\n", workers)
		return g.Wait()
	},
}

// vidorder schedule:run
var scheduleRunCmd = &cobra.Command{
	Use:   "schedule:run",
	Short: "Start the task scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		s := schedule.New()
		if err := s.Add("reconcile-payments", config.ReconcileSchedule(), func(ctx context.Context) error {
			_, err := a.Reconciler.Reconcile(ctx)
			return err
		}); err != nil {
			return err
		}

		fmt.Println("Registered scheduled tasks:")
		for _, e := range s.List() {
			fmt.Printf("  • %s (%s)\n", e.Name, e.Spec)
		}

		g, gctx := errgroup.WithContext(ctx)
		if a.InProcessQueue() {
			g.Go(func() error {
				a.Queue.Run(gctx, config.QueueWorkers())
				return nil
			})
		}
		g.Go(func() error {
			s.Start(gctx)
			return nil
		})

		fmt.Println("Scheduler started. Press Ctrl+C to stop.")
		return g.Wait()
	},
}

// vidorder reconcile
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one payment reconciliation sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		report, err := a.Reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		if md, ok := a.Driver.(*queue.MemoryDriver); ok {
			drain(ctx, a.Queue, md)
		}

		fmt.Printf("checked=%d settled=%d errors=%d\n", report.Checked, report.Settled, report.Errors)
		return nil
	},
}

// drain runs workers until the in-memory queue is empty so mails queued by
// a one-shot command are not lost on exit.
func drain(ctx context.Context, q *queue.Manager, md *queue.MemoryDriver) {
	if md.Len() == 0 {
		return
	}

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		q.Run(wctx, config.QueueWorkers())
		close(done)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for ctx.Err() == nil {
		for md.Len() > 0 && ctx.Err() == nil {
			<-ticker.C
		}
		// A popped job may still fail and push a retry.
		time.Sleep(time.Second)
		if md.Len() == 0 {
			break
		}
	}
	cancel()
	<-done
}

func init() {
	queueWorkCmd.Flags().IntVarP(&queueWorkersFlag, "workers", "w", 0, "Number of concurrent workers (default QUEUE_WORKERS)")
}
