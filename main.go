package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fzft/go-frame-reactor/admin"
	"github.com/fzft/go-frame-reactor/cmd"
	"github.com/fzft/go-frame-reactor/handler"
	"github.com/fzft/go-frame-reactor/log"
	"github.com/fzft/go-frame-reactor/node"
	"go.uber.org/zap"
)

func main() {
	args := os.Args[1:]
	var err error
	if len(args) > 0 && args[0] == "cli" {
		err = runCli(args[1:])
	} else {
		if len(args) > 0 && args[0] == "serve" {
			args = args[1:]
		}
		err = runServe(args)
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	opts, err := parseServeFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.version {
		fmt.Println(Version())
		return nil
	}
	if err := log.InitLogger(opts.logLevel); err != nil {
		return err
	}
	defer log.Logger.Sync()

	s, err := node.NewServer(opts.node)
	if err != nil {
		return err
	}
	h := handler.ByName(opts.handler, s)
	if h == nil {
		return fmt.Errorf("unknown handler %q", opts.handler)
	}
	if opts.zstd {
		h = handler.NewZstd(h)
	}
	s.SetHandler(h)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if opts.admin != "" {
		go func() {
			if err := admin.Serve(ctx, opts.admin, s); err != nil {
				log.Logger.Error("admin server", zap.Error(err))
			}
		}()
	}

	log.Logger.Info("starting", zap.String("version", Version()), zap.String("handler", opts.handler))
	return s.Run(ctx)
}

func runCli(args []string) error {
	cfg, err := parseCliFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	return cmd.NewFrameCli(cfg).Run()
}
