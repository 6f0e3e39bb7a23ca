package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. *App satisfies it.
type execIface interface {
	isConnected() bool
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) error
	Register(ctx context.Context, args []string) error
	Available(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Send(ctx context.Context, args []string) error
	TopUp(ctx context.Context, args []string) error
	Balance(ctx context.Context) error
	History(ctx context.Context) error
	Avatar(ctx context.Context) error
	UploadAvatar(ctx context.Context, args []string) error
	Receive(ctx context.Context) error
	Refresh(ctx context.Context) error
	logError(cmd string, err error)
}

func (a *App) isConnected() bool {
	return a.Session.Snapshot().Connected()
}

// Prompt renders the session part of the prompt.
func (a *App) Prompt() string {
	snap := a.Session.Snapshot()
	switch {
	case snap.Username != "":
		return snap.Username
	case snap.Address != "":
		return shortAddress(snap.Address)
	default:
		return snap.State.String()
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Run starts the interactive loop and returns when input ends, ctx is done
// or the user quits.
func (a *App) Run(ctx context.Context) {
	runREPL(ctx, a, a.Prompt, a.reader, a.out)
}

// runREPL reads one command per line and dispatches it to a. Handlers
// report their own failures to the user; the loop only logs them.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(out, "solva [%s]> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			fmt.Fprintln(out)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		var cmdErr error
		switch cmd {
		case "help", "?":
			if a.isConnected() {
				fmt.Fprintln(out, "Available commands: status, register, available, search, send <user> <amount|max>, topup <amount>, balance, history, avatar, avatar-upload <path>, receive, refresh, disconnect, exit")
			} else {
				fmt.Fprintln(out, "Available commands: connect, status, available, search, exit")
			}

		case "connect":
			cmdErr = a.Connect(ctx)

		case "disconnect":
			cmdErr = a.Disconnect(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "register":
			cmdErr = a.Register(ctx, args)

		case "available":
			cmdErr = a.Available(ctx, args)

		case "search":
			cmdErr = a.Search(ctx, args)

		case "send", "pay":
			cmdErr = a.Send(ctx, args)

		case "topup":
			cmdErr = a.TopUp(ctx, args)

		case "balance":
			cmdErr = a.Balance(ctx)

		case "history":
			cmdErr = a.History(ctx)

		case "avatar":
			cmdErr = a.Avatar(ctx)

		case "avatar-upload":
			cmdErr = a.UploadAvatar(ctx, args)

		case "receive":
			cmdErr = a.Receive(ctx)

		case "refresh":
			cmdErr = a.Refresh(ctx)

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}
		a.logError(cmd, cmdErr)
	}
}
