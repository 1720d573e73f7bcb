package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/client"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/bytedance/sonic"
)

const usage = `usage: shmctl [flags] <command> [args]

commands:
  read                      print the stored JSON value
  write <json>              replace the stored value
  clear                     mark the mailbox empty
  info                      segment name, mode and limits
  types                     list record types
  read-typed <type>         read the stored envelope as <type>
  write-typed <type> <json> store <json> as a <type> record
  services                  list registered services
  health                    bridge health report

flags:
`

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitNoRoute = 3
)

func main() {
	fs := flag.NewFlagSet("shmctl", flag.ExitOnError)
	addr := fs.String("addr", envOr("SHMBRIDGE_ADDR", client.DefaultConfig().BaseURL), "Bridge base URL")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: *addr, Timeout: *timeout, RetryMax: 2})
	code := run(ctx, c, fs.Args(), os.Stdout, os.Stderr)
	if code == exitUsage {
		fs.Usage()
	}
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// run executes one command and returns the process exit code
func run(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "services":
		if len(rest) != 0 {
			return exitUsage
		}
		list, err := c.Services(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		return printJSON(stdout, stderr, list)
	case "health":
		if len(rest) != 0 {
			return exitUsage
		}
		health, err := c.Health(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		return printJSON(stdout, stderr, health)
	}

	toolID, params, ok := toolCall(cmd, rest)
	if !ok {
		return exitUsage
	}

	res, err := c.Execute(ctx, toolID, params)
	if err != nil {
		code := fail(stderr, err)
		if errors.Is(err, client.ErrToolNotFound) {
			code = exitNoRoute
		}
		return code
	}
	return report(stdout, stderr, res)
}

// toolCall maps a command line onto a mailbox tool invocation
func toolCall(cmd string, args []string) (string, map[string]interface{}, bool) {
	switch {
	case cmd == "read" && len(args) == 0:
		return "mailbox.read", nil, true
	case cmd == "write" && len(args) == 1:
		return "mailbox.write", map[string]interface{}{"data": args[0]}, true
	case cmd == "clear" && len(args) == 0:
		return "mailbox.clear", nil, true
	case cmd == "info" && len(args) == 0:
		return "mailbox.info", nil, true
	case cmd == "types" && len(args) == 0:
		return "mailbox.list_supported_types", nil, true
	case cmd == "read-typed" && len(args) == 1:
		return "mailbox.read_typed", map[string]interface{}{"type": args[0]}, true
	case cmd == "write-typed" && len(args) == 2:
		return "mailbox.write_typed", map[string]interface{}{"type": args[0], "data": args[1]}, true
	}
	return "", nil, false
}

func report(stdout, stderr io.Writer, res *types.Result) int {
	if !res.Success {
		msg := res.Code
		if res.Error != nil {
			msg = fmt.Sprintf("%s: %s", res.Code, *res.Error)
		}
		fmt.Fprintln(stderr, msg)
		return exitFailed
	}
	return printJSON(stdout, stderr, res.Data)
}

func printJSON(stdout, stderr io.Writer, v interface{}) int {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, string(out))
	return exitOK
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, "error:", err)
	return exitFailed
}
