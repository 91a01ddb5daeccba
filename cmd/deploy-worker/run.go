package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashutoshpw/coolify/internal/dispatch"
	"github.com/ashutoshpw/coolify/internal/metrics"
	"github.com/ashutoshpw/coolify/internal/queue"
	"github.com/ashutoshpw/coolify/internal/server"
	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the worker: queue deployments from HTTP, NATS and stdin",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address (overrides the configuration)",
			},
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "Read control messages from stdin, one per line, and print replies to stdout",
			},
		},
		Action: func(c *cli.Context) error {
			logger := hclog.Default()

			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if listen := c.String("listen"); listen != "" {
				cfg.Worker.Listen = listen
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			q := queue.New(cfg.Worker.Concurrency, logger)
			m := metrics.New(q)

			parts, err := assemble(cfg, m, logger)
			if err != nil {
				return err
			}
			defer parts.close()

			worker := dispatch.NewWorker(q, parts.pipeline, logger,
				dispatch.WithRegistrar(parts.store),
				dispatch.WithDefaultNetworks(cfg.Networks()))

			q.Start(ctx)

			if parts.nats != nil {
				sub, err := parts.nats.ServeControl(func(data []byte) []byte {
					return worker.HandleRaw(ctx, data)
				})
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()
			}

			if c.Bool("stdin") {
				go serveStream(ctx, worker, os.Stdin, c.App.Writer, logger)
			}

			srv := server.New(worker, m.Handler(), logger).HTTPServer(cfg.Worker.Listen)
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			logger.Info("Worker started", "concurrency", cfg.Worker.Concurrency, "destinations", len(cfg.Destinations))

			select {
			case <-ctx.Done():
				logger.Info("Shutting down, waiting for running deployments")
			case err = <-errCh:
				logger.Error("HTTP server failed", "error", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("HTTP server shutdown", "error", serr)
			}

			// running deployments finish; pending ones stay queued in the record store
			// and are failed by the next run of the same application
			stop()
			q.Wait()
			logger.Info("Worker stopped", "abandoned", q.Size())
			return err
		},
	}
}

// serveStream feeds newline separated control messages from r into the worker
// and writes every reply to w as one line
func serveStream(ctx context.Context, worker *dispatch.Worker, r io.Reader, w io.Writer, logger hclog.Logger) {
	in := make(chan []byte)
	out := make(chan any)

	go func() {
		defer close(in)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case in <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("control stream read failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for reply := range out {
			writeReply(w, reply)
		}
	}()

	if err := worker.Serve(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("control stream stopped", "error", err)
	}
	close(out)
	<-done
}

func writeReply(w io.Writer, reply any) {
	if s, ok := reply.(string); ok {
		fmt.Fprintln(w, s)
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	fmt.Fprintln(w, string(data))
}
