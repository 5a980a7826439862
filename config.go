package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/fzft/go-frame-reactor/cmd"
	"github.com/fzft/go-frame-reactor/node"
)

type serveOptions struct {
	node     node.Config
	handler  string
	zstd     bool
	admin    string
	logLevel string
	version  bool
}

func parseServeFlags(args []string, output io.Writer) (*serveOptions, error) {
	opts := &serveOptions{node: node.DefaultConfig()}
	var order string

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.node.Addr, "addr", node.DefaultAddr, "listen address, ip:port")
	fs.IntVar(&opts.node.MaxClients, "max-clients", node.DefaultMaxClients,
		fmt.Sprintf("max concurrent clients, less than %d", node.ListenerToken))
	fs.IntVar(&opts.node.Reactors, "reactors", node.DefaultReactors, "number of reactor threads")
	fs.StringVar(&order, "queue-order", "lifo", "outbound queue order: lifo or fifo")
	fs.IntVar(&opts.node.MaxFrameSize, "max-frame", node.DefaultMaxFrameSize,
		fmt.Sprintf("largest accepted frame payload in bytes, 0 for the %d byte ceiling", node.MaxFrameLimit))
	fs.IntVar(&opts.node.EventsPerPoll, "events", node.DefaultEventsPerPoll, "events fetched per poll")
	fs.StringVar(&opts.handler, "handler", "echo", "message handler: echo or broadcast")
	fs.BoolVar(&opts.zstd, "zstd", false, "payloads are zstd compressed")
	fs.StringVar(&opts.admin, "admin", "", "admin http address, empty to disable")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o, err := node.ParseQueueOrder(order)
	if err != nil {
		return nil, err
	}
	opts.node.QueueOrder = o
	return opts, opts.node.Validate()
}

func parseCliFlags(args []string, output io.Writer) (*cmd.FrameCliCfg, error) {
	cfg := cmd.DefaultFrameCliCfg()

	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.HostIp, "h", cfg.HostIp, "server hostname")
	fs.IntVar(&cfg.HostPort, "p", cfg.HostPort, "server port")
	fs.BoolVar(&cfg.Zstd, "zstd", false, "compress payloads with zstd")
	fs.IntVar(&cfg.Replies, "replies", cfg.Replies, "reply frames to wait for per line")
	fs.DurationVar(&cfg.Timeout, "timeout", 5*time.Second, "per request timeout, 0 for none")
	fs.IntVar(&cfg.MaxFrameSize, "max-frame", cfg.MaxFrameSize, "largest accepted reply payload in bytes")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Replies < 0 {
		return nil, fmt.Errorf("replies must not be negative")
	}
	if cfg.MaxFrameSize <= 0 {
		return nil, fmt.Errorf("max-frame must be positive")
	}
	return cfg, nil
}
