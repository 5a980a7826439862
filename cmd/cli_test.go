package cmd

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fzft/go-frame-reactor/client"
	"github.com/fzft/go-frame-reactor/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameEcho serves the frame protocol on a loopback port, passing every
// payload through fn before sending it back.
func frameEcho(t *testing.T, fn func([]byte) []byte) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				c := client.New(conn)
				defer c.Close()
				for {
					msg, err := c.Recv()
					if err != nil {
						return
					}
					if err := c.Send(fn(msg)); err != nil {
						return
					}
				}
			}()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func newTestCli(host string, port int) *FrameCli {
	cfg := DefaultFrameCliCfg()
	cfg.HostIp = host
	cfg.HostPort = port
	cfg.Timeout = 5 * time.Second
	return NewFrameCli(cfg)
}

func identity(b []byte) []byte { return b }

func TestCliPipeMode(t *testing.T) {
	host, port := frameEcho(t, identity)
	cli := newTestCli(host, port)

	var out bytes.Buffer
	cli.SetIO(strings.NewReader("hello\nworld\nquit\nnever sent\n"), &out)
	require.NoError(t, cli.Run())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `"hello" (5 bytes`), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"world" (5 bytes`), lines[1])
}

func TestCliZstd(t *testing.T) {
	seen := make(chan []byte, 1)
	host, port := frameEcho(t, func(b []byte) []byte {
		seen <- b
		return b
	})
	cli := newTestCli(host, port)
	cli.config.Zstd = true

	var out bytes.Buffer
	cli.SetIO(strings.NewReader("hello\n"), &out)
	require.NoError(t, cli.Run())

	assert.True(t, strings.HasPrefix(out.String(), `"hello" (5 bytes`), out.String())
	plain, err := handler.Decompress(<-seen)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))
}

func TestCliConnectCommand(t *testing.T) {
	host, port := frameEcho(t, identity)
	cli := newTestCli(host, 1)

	var out bytes.Buffer
	input := "connect " + host + " notaport\nconnect " + host + " " + strconv.Itoa(port) + "\nping\n"
	cli.SetIO(strings.NewReader(input), &out)
	require.NoError(t, cli.Run())

	assert.Contains(t, out.String(), "Invalid port number")
	assert.Contains(t, out.String(), `"ping" (4 bytes`)
	assert.Equal(t, port, cli.config.HostPort)
}

func TestCliReportsSendError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	cli := newTestCli("127.0.0.1", addr.Port)
	var out bytes.Buffer
	cli.SetIO(strings.NewReader("hello\n"), &out)
	require.NoError(t, cli.Run())

	assert.Contains(t, out.String(), "(error)")
}

func TestGetDotfilePath(t *testing.T) {
	t.Setenv("FRAMECLI_TEST_HIST", "/dev/null")
	assert.Empty(t, getDotfilePath("FRAMECLI_TEST_HIST", ".x"))

	t.Setenv("FRAMECLI_TEST_HIST", "/tmp/hist")
	assert.Equal(t, "/tmp/hist", getDotfilePath("FRAMECLI_TEST_HIST", ".x"))

	t.Setenv("FRAMECLI_TEST_HIST", "")
	t.Setenv("HOME", "/home/u")
	assert.Equal(t, "/home/u/.x", getDotfilePath("FRAMECLI_TEST_HIST", ".x"))
}

func TestCliRejectsOversizedReply(t *testing.T) {
	host, port := frameEcho(t, func([]byte) []byte { return make([]byte, 64) })
	cli := newTestCli(host, port)
	cli.config.MaxFrameSize = 16

	var out bytes.Buffer
	cli.SetIO(strings.NewReader("hello\n"), &out)
	require.NoError(t, cli.Run())

	assert.Contains(t, out.String(), "(error)")
	assert.Contains(t, out.String(), client.ErrFrameTooLarge.Error())
}
