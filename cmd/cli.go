package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fzft/go-frame-reactor/client"
	"github.com/fzft/go-frame-reactor/deps/linenoise"
	"github.com/fzft/go-frame-reactor/handler"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

var (
	CliHisFileEnv     = "FRAMECLI_HISTFILE"
	CliHisFileDefault = ".framecli_history"
)

type FrameCliCfg struct {
	HostIp   string
	HostPort int

	// Zstd compresses every outbound line and decompresses every reply.
	Zstd bool

	// Replies is how many reply frames to wait for after each send.
	Replies int

	Timeout time.Duration

	// MaxFrameSize bounds every reply frame.
	MaxFrameSize int
}

func DefaultFrameCliCfg() *FrameCliCfg {
	return &FrameCliCfg{
		HostIp:       "127.0.0.1",
		HostPort:     7777,
		Replies:      1,
		Timeout:      5 * time.Second,
		MaxFrameSize: client.DefaultMaxFrameSize,
	}
}

// FrameCli sends each input line as one frame and prints the replies.
type FrameCli struct {
	config *FrameCliCfg
	conn   *client.Client

	in  io.Reader
	out io.Writer
}

func NewFrameCli(config *FrameCliCfg) *FrameCli {
	return &FrameCli{config: config, in: os.Stdin, out: os.Stdout}
}

// SetIO replaces stdin/stdout; input is then always read line by line.
func (cli *FrameCli) SetIO(in io.Reader, out io.Writer) {
	cli.in = in
	cli.out = out
}

func (cli *FrameCli) addr() string {
	return net.JoinHostPort(cli.config.HostIp, strconv.Itoa(cli.config.HostPort))
}

// connect dials the server, dropping any previous connection.
func (cli *FrameCli) connect() error {
	if cli.conn != nil {
		cli.conn.Close()
		cli.conn = nil
	}
	c, err := client.DialTimeout(cli.addr(), cli.config.Timeout)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", cli.addr(), err)
	}
	if cli.config.MaxFrameSize > 0 {
		c.MaxFrameSize = cli.config.MaxFrameSize
	}
	cli.conn = c
	return nil
}

func (cli *FrameCli) Run() error {
	if err := cli.connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	defer func() {
		if cli.conn != nil {
			cli.conn.Close()
		}
	}()

	if f, ok := cli.in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return cli.repl()
	}
	return cli.pipe()
}

// repl is the interactive mode with line editing and history.
func (cli *FrameCli) repl() error {
	line := linenoise.New()
	defer line.Close()

	historyFile := getDotfilePath(CliHisFileEnv, CliHisFileDefault)
	if historyFile != "" {
		line.HistoryLoad(historyFile)
	}

	for {
		prompt := "not connected> "
		if cli.conn != nil {
			prompt = cli.addr() + "> "
		}
		text, err := line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		line.AppendHistory(text)
		if historyFile != "" {
			line.HistorySave(historyFile)
		}

		if quit := cli.dispatch(text, func() { line.ClearScreen(cli.out) }); quit {
			return nil
		}
	}
}

// pipe sends every line read from input, used when input is not a terminal.
func (cli *FrameCli) pipe() error {
	sc := bufio.NewScanner(cli.in)
	for sc.Scan() {
		if quit := cli.dispatch(sc.Text(), nil); quit {
			return nil
		}
	}
	return sc.Err()
}

// dispatch runs one input line and reports whether the cli should exit.
func (cli *FrameCli) dispatch(text string, clear func()) bool {
	argv := strings.Fields(text)
	switch {
	case len(argv) == 1 && (strings.EqualFold(argv[0], "quit") || strings.EqualFold(argv[0], "exit")):
		return true
	case len(argv) == 1 && strings.EqualFold(argv[0], "clear"):
		if clear != nil {
			clear()
		}
		return false
	case len(argv) == 3 && strings.EqualFold(argv[0], "connect"):
		port, err := strconv.Atoi(argv[2])
		if err != nil {
			fmt.Fprintln(cli.out, "Invalid port number")
			return false
		}
		cli.config.HostIp = argv[1]
		cli.config.HostPort = port
		if err := cli.connect(); err != nil {
			fmt.Fprintln(cli.out, err)
		}
		return false
	}

	if err := cli.send(text); err != nil {
		fmt.Fprintf(cli.out, "(error) %v\n", err)
		if cli.conn != nil {
			cli.conn.Close()
			cli.conn = nil
		}
	}
	return false
}

func (cli *FrameCli) send(text string) error {
	if cli.conn == nil {
		if err := cli.connect(); err != nil {
			return err
		}
	}

	payload := []byte(text)
	if cli.config.Zstd {
		payload = handler.Compress(payload)
	}

	start := time.Now()
	if cli.config.Timeout > 0 {
		cli.conn.SetDeadline(start.Add(cli.config.Timeout))
	}
	if err := cli.conn.Send(payload); err != nil {
		return err
	}
	for i := 0; i < cli.config.Replies; i++ {
		reply, err := cli.conn.Recv()
		if err != nil {
			return err
		}
		if cli.config.Zstd {
			if reply, err = handler.Decompress(reply); err != nil {
				return err
			}
		}
		fmt.Fprintf(cli.out, "%q (%d bytes, %s)\n", reply, len(reply), time.Since(start).Round(time.Microsecond))
	}
	return nil
}

func getDotfilePath(envOverride, dotFilename string) string {
	path := os.Getenv(envOverride)
	if path != "" {
		if path == "/dev/null" {
			return ""
		}
		return path
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", home, dotFilename)
}
