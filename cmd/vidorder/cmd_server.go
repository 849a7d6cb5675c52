package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shashiranjanraj/vidorder/app/routes"
	"github.com/shashiranjanraj/vidorder/config"
	"github.com/shashiranjanraj/vidorder/internal/bootstrap"
	"github.com/shashiranjanraj/vidorder/internal/kernel"
	"github.com/shashiranjanraj/vidorder/internal/server"
	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

func kernelOptions() kernel.Options {
	return kernel.Options{
		ServiceName:  "vidorder",
		FrontendURL:  config.FrontendURL(),
		RateLimitRPS: config.RateLimitRPS(),
	}
}

// vidorder serve: start the HTTP server.
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap.New(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		k := kernel.NewHTTPKernel(a.Controllers(), kernelOptions())

		g, gctx := errgroup.WithContext(ctx)
		if a.InProcessQueue() {
			g.Go(func() error {
				a.Queue.Run(gctx, config.QueueWorkers())
				return nil
			})
		}
		g.Go(func() error {
			return server.Run(gctx, server.Config{Addr: ":" + config.AppPort()}, k.Handler())
		})

		err = g.Wait()
		logger.Info("vidorder stopped")
		return err
	},
}

// vidorder route:list: print all registered routes.
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all registered routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		k := kernel.NewHTTPKernel(routes.Controllers{}, kernelOptions())

		infos := k.Router().Routes()
		if len(infos) == 0 {
			fmt.Println("No routes registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tNAME")
		fmt.Fprintln(w, "------\t----\t----")
		for _, ri := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
		}
		return w.Flush()
	},
}
