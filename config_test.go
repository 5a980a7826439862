package main

import (
	"io"
	"testing"
	"time"

	"github.com/fzft/go-frame-reactor/client"
	"github.com/fzft/go-frame-reactor/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServeFlagsDefaults(t *testing.T) {
	opts, err := parseServeFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, node.DefaultConfig(), opts.node)
	assert.Equal(t, "echo", opts.handler)
	assert.Equal(t, "info", opts.logLevel)
	assert.False(t, opts.zstd)
	assert.Empty(t, opts.admin)
}

func TestParseServeFlags(t *testing.T) {
	opts, err := parseServeFlags([]string{
		"-addr", "0.0.0.0:9000", "-max-clients", "500", "-reactors", "8",
		"-queue-order", "fifo", "-max-frame", "4096", "-handler", "broadcast",
		"-zstd", "-admin", "127.0.0.1:8080",
	}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", opts.node.Addr)
	assert.Equal(t, 500, opts.node.MaxClients)
	assert.Equal(t, 8, opts.node.Reactors)
	assert.Equal(t, node.FIFO, opts.node.QueueOrder)
	assert.Equal(t, 4096, opts.node.MaxFrameSize)
	assert.Equal(t, "broadcast", opts.handler)
	assert.True(t, opts.zstd)
	assert.Equal(t, "127.0.0.1:8080", opts.admin)
}

func TestParseServeFlagsInvalid(t *testing.T) {
	_, err := parseServeFlags([]string{"-max-clients", "1000"}, io.Discard)
	assert.ErrorIs(t, err, node.ErrTooManyClients)

	_, err = parseServeFlags([]string{"-addr", "localhost:1"}, io.Discard)
	assert.ErrorIs(t, err, node.ErrInvalidAddr)

	_, err = parseServeFlags([]string{"-queue-order", "random"}, io.Discard)
	assert.Error(t, err)

	_, err = parseServeFlags([]string{"-max-frame", "-1"}, io.Discard)
	assert.ErrorIs(t, err, node.ErrFrameTooLarge)

	_, err = parseServeFlags([]string{"-nope"}, io.Discard)
	assert.Error(t, err)
}

func TestParseCliFlags(t *testing.T) {
	cfg, err := parseCliFlags([]string{"-h", "10.0.0.1", "-p", "9000", "-zstd", "-replies", "2", "-timeout", "1s"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.HostIp)
	assert.Equal(t, 9000, cfg.HostPort)
	assert.True(t, cfg.Zstd)
	assert.Equal(t, 2, cfg.Replies)
	assert.Equal(t, time.Second, cfg.Timeout)

	assert.Equal(t, client.DefaultMaxFrameSize, cfg.MaxFrameSize)

	_, err = parseCliFlags([]string{"-replies", "-1"}, io.Discard)
	assert.Error(t, err)

	cfg, err = parseCliFlags([]string{"-max-frame", "1024"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.MaxFrameSize)

	_, err = parseCliFlags([]string{"-max-frame", "0"}, io.Discard)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	assert.Contains(t, Version(), "go-frame-reactor git:")
}
