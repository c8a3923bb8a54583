// Command sfcopy copies a file through parallel ranged streams that share
// one descriptor per side.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/rosedblabs/sharedfile"
)

func main() {
	app := cli.NewApp()
	app.Name = "sfcopy"
	app.Usage = "copy a file with parallel ranged streams"
	app.ArgsUsage = "SRC DST"
	app.Flags = []cli.Flag{
		cli.Int64Flag{
			Name:  "chunk-size, c",
			Usage: "bytes copied by each stream pair",
			Value: sharedfile.DefaultCopyOptions.ChunkSize,
		},
		cli.IntFlag{
			Name:  "concurrency, j",
			Usage: "stream pairs in flight",
			Value: sharedfile.DefaultCopyOptions.Concurrency,
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log file lifecycle events",
		},
	}
	app.Action = handleCopy

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func handleCopy(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.NewExitError("usage: sfcopy [options] SRC DST", 2)
	}

	logger := zap.NewNop()
	if ctx.Bool("verbose") {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	src, err := openSide(ctx.Args().Get(0), "r", logger)
	if err != nil {
		return err
	}
	dst, err := openSide(ctx.Args().Get(1), "w", logger)
	if err != nil {
		return err
	}

	options := sharedfile.DefaultCopyOptions
	options.ChunkSize = ctx.Int64("chunk-size")
	options.Concurrency = ctx.Int("concurrency")

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	n, err := sharedfile.Copy(runCtx, dst, src, options)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("sfcopy: %v", err), 1)
	}
	fmt.Printf("copied %s in %s\n", humanize.IBytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return nil
}

func openSide(path, flags string, logger *zap.Logger) (*sharedfile.Coordinator, error) {
	options := sharedfile.DefaultOptions
	options.Flags = flags
	options.Logger = logger
	c, err := sharedfile.New(path, options)
	if err != nil {
		return nil, err
	}
	c.Subscribe(func(ev sharedfile.Event) {
		if ev.Type == sharedfile.EventError {
			logger.Warn("lifecycle error", zap.String("path", path), zap.Error(ev.Err))
		}
	})
	return c, nil
}
