// Package interactive provides the interactive command-line interface
// for ws3ds.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/frame"
	"github.com/ws3ds/ws3ds-go/pkg/session"
)

// Client is the part of session.Client the console drives.
type Client interface {
	Start(ctx context.Context, opts session.StartOptions) error
	Cancel()
	Status() session.Status
	Failures() <-chan error
	SendText(text string) error
	SendImage(img image.Image) error
}

// Console handles interactive mode for ws3ds.
type Console struct {
	client Client
	opts   session.StartOptions
	rl     *readline.Instance
	out    io.Writer

	ok   func(format string, a ...any) string
	warn func(format string, a ...any) string
	bad  func(format string, a ...any) string
}

// New creates a console. opts are used by the search command when no host
// argument is given.
func New(client Client, opts session.StartOptions) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ws3ds> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("search"),
			readline.PcItem("cancel"),
			readline.PcItem("status"),
			readline.PcItem("text"),
			readline.PcItem("image"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(client, opts, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(client Client, opts session.StartOptions, out io.Writer) *Console {
	return &Console{
		client: client,
		opts:   opts,
		out:    out,
		ok:     color.New(color.FgGreen).SprintfFunc(),
		warn:   color.New(color.FgYellow).SprintfFunc(),
		bad:    color.New(color.FgRed).SprintfFunc(),
	}
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output and device text.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Notify prints a state change.
func (c *Console) Notify(oldState, newState session.State) {
	line := fmt.Sprintf("%s -> %s", oldState, newState)
	switch newState {
	case session.StateConnected:
		line = c.ok("%s", line)
	case session.StateCanceled, session.StateDisconnected:
		line = c.warn("%s", line)
	}
	fmt.Fprintln(c.out, line)
}

// Run starts the interactive command loop. It returns when the user quits
// or ctx ends.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	go c.watchFailures(ctx)
	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !c.Exec(ctx, input) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console must exit.
func (c *Console) Exec(ctx context.Context, input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()
	case "search", "s":
		c.cmdSearch(ctx, rest)
	case "cancel":
		c.client.Cancel()
		c.cmdStatus()
	case "status", "st":
		c.cmdStatus()
	case "text", "t":
		c.cmdText(rest)
	case "image", "img":
		c.cmdImage(rest)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `
ws3ds Commands:
  search [host]   - Find the device (scan the subnet, or dial one host)
  cancel          - Abandon the current search
  status          - Show the session state
  text <message>  - Send a text message
  image <file>    - Fit an image to the top screen and send it
  quit            - Exit
`)
}

func (c *Console) cmdSearch(ctx context.Context, host string) {
	opts := c.opts
	if host != "" {
		opts.Host = host
	}
	err := c.client.Start(ctx, opts)
	switch {
	case err == nil:
		target := "local subnet"
		if opts.Host != "" {
			target = opts.Host
		}
		fmt.Fprintf(c.out, "Searching %s...\n", target)
	case errors.Is(err, discovery.ErrUnresolved):
		c.printErr(err)
		fmt.Fprintln(c.out, "Local address unknown: try 'search <host>'")
	default:
		c.printErr(err)
	}
}

func (c *Console) cmdStatus() {
	st := c.client.Status()
	w := c.out
	fmt.Fprintf(w, "State:   %s\n", st.State)
	if st.SearchID != "" {
		fmt.Fprintf(w, "Search:  %s\n", st.SearchID)
	}
	if !st.Address.IsZero() {
		fmt.Fprintf(w, "Device:  %s\n", st.Address)
	}
	if !st.Since.IsZero() {
		fmt.Fprintf(w, "Since:   %s\n", st.Since.Format(time.TimeOnly))
	}
}

func (c *Console) cmdText(text string) {
	if text == "" {
		fmt.Fprintln(c.out, "Usage: text <message>")
		return
	}
	if err := c.client.SendText(text); err != nil {
		c.printErr(err)
		return
	}
	fmt.Fprintln(c.out, c.ok("sent %d bytes", len(text)))
}

func (c *Console) cmdImage(path string) {
	if path == "" {
		fmt.Fprintln(c.out, "Usage: image <file>")
		return
	}
	img, err := frame.Load(path)
	if err != nil {
		c.printErr(err)
		return
	}
	if err := c.client.SendImage(img); err != nil {
		c.printErr(err)
		return
	}
	b := img.Bounds()
	fmt.Fprintln(c.out, c.ok("sent %dx%d image as %dx%d frame", b.Dx(), b.Dy(), frame.ScreenWidth, frame.ScreenHeight))
}

func (c *Console) watchFailures(ctx context.Context) {
	for {
		select {
		case err := <-c.client.Failures():
			c.printErr(err)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Console) printErr(err error) {
	fmt.Fprintln(c.out, c.bad("Error: %v", err))
}
