// Package cli is the terminal front-end. It renders session snapshots and
// dispatches user commands to the session store, search and payment flow.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solva-wallet/internal/errs"
	"solva-wallet/internal/models"
	"solva-wallet/internal/payment"
	"solva-wallet/internal/search"
	"solva-wallet/internal/validation"
	"solva-wallet/internal/wallet"
)

// SessionStore is the part of the session store the terminal uses.
type SessionStore interface {
	Snapshot() models.Session
	Transactions() []models.Transaction
	Register(ctx context.Context, username string) error
	TopUp(amount decimal.Decimal) error
	Refresh(ctx context.Context) error
	RefreshBalance(ctx context.Context) error
	FetchAvatar(ctx context.Context) error
	UploadAvatar(ctx context.Context, filename string, content io.Reader) error
}

type PaymentSender interface {
	Send(ctx context.Context, req payment.Request) (*payment.Receipt, error)
	OnStep(fn func(payment.Step))
}

type UserFinder interface {
	SetQuery(ctx context.Context, query string)
	Wait()
	Results() search.Results
	Resolve(ctx context.Context, username string) (models.SearchResult, error)
}

type AvailabilityWatcher interface {
	SetUsername(ctx context.Context, username string)
	Wait()
	State() search.Availability
}

type Connector interface {
	Connect(acct wallet.Account) <-chan struct{}
	Disconnect() <-chan struct{}
	Current() wallet.Account
}

// AccountLoader produces the wallet account to connect with.
type AccountLoader func(ctx context.Context) (wallet.Account, error)

type Deps struct {
	Session      SessionStore
	Payments     PaymentSender
	Finder       UserFinder
	Availability AvailabilityWatcher
	Connector    Connector
	LoadAccount  AccountLoader
	AppURL       string
	Logger       *zerolog.Logger
}

type App struct {
	Deps
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(deps Deps, reader *bufio.Reader, out io.Writer) *App {
	a := &App{Deps: deps, reader: reader, out: out}
	if a.Payments != nil {
		a.Payments.OnStep(func(step payment.Step) {
			switch step {
			case payment.StepApprove:
				a.println("Approving token spend...")
			case payment.StepSend:
				a.println("Sending payment...")
			case payment.StepComplete:
				a.println("Payment confirmed.")
			}
		})
	}
	return a
}

func (a *App) println(args ...interface{}) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// Connect loads the wallet account and waits until the session has
// processed it.
func (a *App) Connect(ctx context.Context) error {
	acct, err := a.LoadAccount(ctx)
	if err != nil {
		a.printf("Could not load wallet: %v\n", err)
		return err
	}
	<-a.Connector.Connect(acct)
	return a.Status(ctx)
}

func (a *App) Disconnect(ctx context.Context) error {
	<-a.Connector.Disconnect()
	a.println("Wallet disconnected.")
	return nil
}

func (a *App) Status(_ context.Context) error {
	snap := a.Session.Snapshot()
	switch snap.State {
	case models.StateDisconnected:
		if acct := a.Connector.Current(); acct != nil {
			a.printf("Wallet %s is not signed in. Use 'connect' to try again.\n", acct.Address().Hex())
			return nil
		}
		a.println("Not connected. Use 'connect' to connect your wallet.")
	case models.StateAuthenticating:
		a.printf("Authenticating %s...\n", snap.Address)
	case models.StateConnectedUnregistered:
		a.printf("Connected as %s (no username yet, use 'register <name>')\n", snap.Address)
		a.printf("Balance: $%s\n", snap.Balance.StringFixed(2))
	case models.StateConnectedRegistered:
		a.printf("Connected as %s (%s)\n", snap.Username, snap.Address)
		a.printf("Balance: $%s\n", snap.Balance.StringFixed(2))
		if snap.AvatarURL != "" {
			a.printf("Avatar: %s\n", snap.AvatarURL)
		}
	}
	return nil
}

func (a *App) Available(ctx context.Context, args []string) error {
	username, err := a.argOrPrompt(args, "Username")
	if err != nil {
		return err
	}
	state := a.checkAvailability(ctx, username)
	if !state.Valid || !state.Available {
		return fmt.Errorf("%w: %s", errs.ErrValidation, state.Message)
	}
	return nil
}

func (a *App) checkAvailability(ctx context.Context, username string) search.Availability {
	a.Availability.SetUsername(ctx, username)
	a.Availability.Wait()
	state := a.Availability.State()
	if state.Message != "" {
		a.println(state.Message)
	}
	return state
}

// Register checks availability first, as the registration form does.
func (a *App) Register(ctx context.Context, args []string) error {
	if a.Session.Snapshot().IsRegistered {
		a.println("Already registered.")
		return nil
	}
	username, err := a.argOrPrompt(args, "Choose a username (letters and digits, at least 3)")
	if err != nil {
		return err
	}
	if state := a.checkAvailability(ctx, username); state.Valid && !state.Available {
		return fmt.Errorf("%w: username not available", errs.ErrValidation)
	}
	return a.Session.Register(ctx, username)
}

func (a *App) Search(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	a.Finder.SetQuery(ctx, query)
	a.Finder.Wait()

	res := a.Finder.Results()
	if res.Err != nil {
		a.printf("Search failed: %v\n", res.Err)
		return res.Err
	}
	if len(res.Users) == 0 {
		a.println("No users found.")
		return nil
	}
	for _, u := range res.Users {
		a.printf("  %-20s %s\n", u.Username, u.Address)
	}
	return nil
}

// Send resolves the recipient and runs the payment flow. "max" sends the
// whole balance.
func (a *App) Send(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.println("Usage: send <username> <amount|max>")
		return fmt.Errorf("%w: usage: send <username> <amount|max>", errs.ErrValidation)
	}
	recipient, amount := args[0], args[1]
	if strings.EqualFold(amount, "max") {
		amount = a.Session.Snapshot().Balance.String()
	}

	user, err := a.Finder.Resolve(ctx, recipient)
	if err != nil {
		a.printf("Recipient address not found: %v\n", err)
		user = models.SearchResult{Username: recipient}
	}

	receipt, err := a.Payments.Send(ctx, payment.Request{
		Recipient:        user.Username,
		RecipientAddress: user.Address,
		Amount:           amount,
	})
	if err != nil {
		return err
	}
	if receipt.ExplorerURL != "" {
		a.printf("View transaction: %s\n", receipt.ExplorerURL)
	}
	return nil
}

func (a *App) TopUp(_ context.Context, args []string) error {
	if len(args) < 1 {
		a.println("Usage: topup <amount>")
		return fmt.Errorf("%w: usage: topup <amount>", errs.ErrValidation)
	}
	amount, err := validation.ParseAmount(args[0])
	if err != nil {
		a.printf("Invalid amount: %s\n", validation.Message(err))
		return err
	}
	return a.Session.TopUp(amount)
}

func (a *App) Balance(ctx context.Context) error {
	if err := a.Session.RefreshBalance(ctx); err != nil {
		a.printf("Could not refresh balance: %v\n", err)
	}
	a.printf("Balance: $%s\n", a.Session.Snapshot().Balance.StringFixed(2))
	return nil
}

func (a *App) History(_ context.Context) error {
	txs := a.Session.Transactions()
	if len(txs) == 0 {
		a.println("No transactions yet.")
		return nil
	}
	for _, tx := range txs {
		sign := "+"
		if tx.Direction == models.DirectionSent {
			sign = "-"
		}
		a.printf("%s  %-8s %-20s %s$%s  %s\n",
			tx.Timestamp.Local().Format("Jan 02 2006 15:04"),
			tx.Direction,
			tx.Counterparty,
			sign,
			tx.Amount.StringFixed(2),
			tx.Status,
		)
	}
	return nil
}

func (a *App) Avatar(ctx context.Context) error {
	if err := a.Session.FetchAvatar(ctx); err != nil {
		a.printf("Could not fetch avatar: %v\n", err)
		return err
	}
	if avatarURL := a.Session.Snapshot().AvatarURL; avatarURL != "" {
		a.printf("Avatar: %s\n", avatarURL)
	} else {
		a.println("No avatar set.")
	}
	return nil
}

func (a *App) UploadAvatar(ctx context.Context, args []string) error {
	path, err := a.argOrPrompt(args, "Path to image")
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		a.printf("Could not open %s: %v\n", path, err)
		return err
	}
	defer f.Close()
	return a.Session.UploadAvatar(ctx, filepath.Base(path), f)
}

// Receive prints the link other users can open to pay this account.
func (a *App) Receive(_ context.Context) error {
	snap := a.Session.Snapshot()
	if !snap.IsRegistered {
		a.println("Register a username first.")
		return fmt.Errorf("%w: no username", errs.ErrAuthRequired)
	}
	link := fmt.Sprintf("%s?view=send&recipient=%s", strings.TrimSuffix(a.AppURL, "/"), url.QueryEscape(snap.Username))
	a.printf("Share this link to get paid:\n  %s\n", link)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.Session.Refresh(ctx); err != nil {
		a.printf("Refresh failed: %v\n", err)
		return err
	}
	return a.Status(ctx)
}

func (a *App) argOrPrompt(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	value, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", errors.New("no input")
	}
	return value, nil
}

func (a *App) logError(cmd string, err error) {
	if err == nil || a.Logger == nil {
		return
	}
	a.Logger.Debug().Err(err).Str("command", cmd).Str("category", errs.Title(err)).Msg("Command failed")
}
