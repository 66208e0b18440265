package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/sarchlab/luabridge/bridge"
	"github.com/sarchlab/luabridge/handle"
	"github.com/spf13/cobra"
)

const (
	historyFile   = ".luabridge_history"
	consolePrompt = "luabridge> "
)

var consoleCmd = &cobra.Command{
	Use:   "console <script>",
	Short: "Drive a script session by hand.",
	Long: "`console` opens a session and reads commands:\n" +
		consoleHelp,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revision, err := revisionFlag(cmd)
		if err != nil {
			return err
		}

		return runConsole(cmd.OutOrStdout(), revision, args[0])
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().String("revision", "timed",
		"Master protocol revision, timed or cad.")
}

const consoleHelp = `  m <data> <status>               master exchange
  s <time> <cmd> <addr> <data>    slave exchange
  r <cmd>                         read_data
  w <time> <data>                 write_data
  info                            show the session
  quit                            close the session and exit
Numbers may be decimal or 0x hex.
`

var errQuit = errors.New("quit")

type console struct {
	b   *bridge.Bridge
	h   handle.Handle
	out io.Writer
}

func runConsole(out io.Writer, revision bridge.Revision, path string) error {
	b := bridge.MakeBuilder().WithRevision(revision).Build()
	defer b.Close()

	h, err := b.Init(path)
	if err != nil {
		return err
	}

	c := &console{b: b, h: h, out: out}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintf(out, "session %s from %s, type help for commands\n", h, path)

	for {
		line, err := ln.Prompt(consolePrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}

		if err != nil {
			return err
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		ln.AppendHistory(line)

		err = c.exec(line)
		if errors.Is(err, errQuit) {
			return nil
		}

		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	}
}

func (c *console) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprint(c.out, consoleHelp)
		return nil
	case "info":
		return c.info()
	}

	words, err := parseWords(args)
	if err != nil {
		return err
	}

	switch name {
	case "m":
		return c.master(words)
	case "s":
		return c.slave(words)
	case "r":
		return c.read(words)
	case "w":
		return c.write(words)
	default:
		return fmt.Errorf("unknown command %q, type help", name)
	}
}

func parseWords(args []string) ([]uint32, error) {
	words := make([]uint32, len(args))

	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}

		words[i] = uint32(v)
	}

	return words, nil
}

func wantArgs(words []uint32, n int) error {
	if len(words) != n {
		return fmt.Errorf("%d arguments given, %d expected", len(words), n)
	}

	return nil
}

func (c *console) status(err error) error {
	if err != nil {
		fmt.Fprintf(c.out, "status %d\n", bridge.StatusCode(err))
	}

	return err
}

func (c *console) master(words []uint32) error {
	if err := wantArgs(words, 2); err != nil {
		return err
	}

	r, err := c.b.ExchangeMaster(c.h, words[0], words[1])
	if err != nil {
		return c.status(err)
	}

	fmt.Fprintf(c.out, "time=%d cmd=%s addr=0x%08x data=0x%08x\n",
		r.Time, r.Cmd, r.Addr, r.Data)

	return nil
}

func (c *console) slave(words []uint32) error {
	if err := wantArgs(words, 4); err != nil {
		return err
	}

	r, err := c.b.ExchangeSlave(c.h,
		words[0], bridge.Command(words[1]), words[2], words[3])
	if err != nil {
		return c.status(err)
	}

	fmt.Fprintf(c.out, "data=0x%08x status=%d\n", r.Data, r.Status)

	return nil
}

func (c *console) read(words []uint32) error {
	if err := wantArgs(words, 1); err != nil {
		return err
	}

	v, err := c.b.ReadData(c.h, words[0])
	if err != nil {
		return c.status(err)
	}

	fmt.Fprintf(c.out, "data=0x%08x\n", v)

	return nil
}

func (c *console) write(words []uint32) error {
	if err := wantArgs(words, 2); err != nil {
		return err
	}

	err := c.b.WriteData(c.h, words[0], words[1])
	if err != nil {
		return c.status(err)
	}

	fmt.Fprintln(c.out, "ok")

	return nil
}

func (c *console) info() error {
	s, err := c.b.Session(c.h)
	if err != nil {
		return err
	}

	info := s.Info()
	fmt.Fprintf(c.out, "handle %s\nscript %s\nstate %s\n",
		info.Handle, info.ScriptPath, info.State)
	fmt.Fprintf(c.out, "exchanges %d, failures %d, last status %d\n",
		info.Exchanges, info.Failures, info.LastStatus)
	fmt.Fprintf(c.out, "functions %s\n", strings.Join(s.Functions(), " "))

	return nil
}
