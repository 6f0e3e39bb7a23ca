package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// readSecret is a test seam for term.ReadPassword.
var readSecret = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// If EOF occurs after some input was read, the partial line is returned.
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetSecret reads a private key or passphrase from the terminal without echo.
func GetSecret(prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}
	secret, err := readSecret(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// TerminalConfirmer asks yes/no questions on the console, standing in for
// a wallet's signature popup.
type TerminalConfirmer struct {
	mu     sync.Mutex
	reader *bufio.Reader
	w      io.Writer
}

func NewTerminalConfirmer(reader *bufio.Reader, w io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{reader: reader, w: w}
}

func (c *TerminalConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	answer, err := GetSimpleText(c.reader, prompt+" [y/N]", c.w)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ConsoleNotifier prints transient notifications.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

func (n *ConsoleNotifier) Success(title, description string) {
	n.print("[ok]", title, description)
}

func (n *ConsoleNotifier) Error(title, description string) {
	n.print("[error]", title, description)
}

func (n *ConsoleNotifier) print(tag, title, description string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if description == "" {
		fmt.Fprintf(n.w, "%s %s\n", tag, title)
		return
	}
	fmt.Fprintf(n.w, "%s %s: %s\n", tag, title, description)
}
