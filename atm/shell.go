package atm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alovak/cardflow-atm/atm/models"
	"github.com/alovak/cardflow-atm/internal/timestamp"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// Shell is the interactive terminal in front of the Service: it prompts,
// parses input and prints results for one user session.
type Shell struct {
	svc    *Service
	in     *bufio.Scanner
	out    io.Writer
	logger *slog.Logger
}

func NewShell(logger *slog.Logger, svc *Service, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		svc:    svc,
		in:     bufio.NewScanner(in),
		out:    out,
		logger: logger.With(slog.String("component", "shell")),
	}
}

// messages maps service errors to what the customer sees.
var messages = []struct {
	err error
	msg string
}{
	{models.ErrCardNotFound, "Card number not found."},
	{models.ErrAuthFailed, "Too many incorrect PIN attempts."},
	{models.ErrDuplicateCard, "Card number already registered."},
	{models.ErrPINMismatch, "PINs do not match."},
	{models.ErrInvalidBalance, "Invalid initial balance."},
	{models.ErrCapacityExceeded, "User limit reached. Cannot register new user."},
	{models.ErrInvalidCardNumber, "Invalid card number (1-19 characters, no spaces)."},
	{models.ErrInvalidPIN, "PIN must be exactly 4 digits."},
	{models.ErrInvalidAmount, "Invalid amount."},
	{models.ErrInsufficientBalance, "Insufficient balance."},
	{models.ErrOldPINIncorrect, "Old PIN incorrect."},
	{models.ErrSave, "Error saving data."},
}

func describe(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return fmt.Sprintf("Error: %v", err)
}

// Run drives one session: registration or login followed by the menu.
// It returns an error when the user could not be signed in.
func (sh *Shell) Run() error {
	fmt.Fprintln(sh.out, "=== Welcome to ATM Simulation System ===")
	isNew, err := sh.askNewUser()
	if err != nil {
		return err
	}

	var account *models.Account
	if isNew {
		account, err = sh.register()
		if err != nil {
			fmt.Fprintln(sh.out, "Registration failed. Exiting.")
			return err
		}
	} else {
		account, err = sh.login()
		if err != nil {
			fmt.Fprintln(sh.out, "Login failed. Exiting.")
			return err
		}
	}

	sh.logger.Info("session opened")
	defer sh.logger.Info("session closed")
	return sh.menu(account)
}

func (sh *Shell) askNewUser() (bool, error) {
	fmt.Fprint(sh.out, "Are you a new user? (1 = Yes, 0 = No): ")
	for {
		line, err := sh.readLine()
		if err != nil {
			return false, err
		}
		switch line {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		fmt.Fprint(sh.out, "Invalid input. Enter 1 for Yes or 0 for No: ")
	}
}

func (sh *Shell) register() (*models.Account, error) {
	if sh.svc.AtCapacity() {
		fmt.Fprintln(sh.out, describe(models.ErrCapacityExceeded))
		return nil, models.ErrCapacityExceeded
	}

	card, err := sh.prompt("Enter new card number (max 19 chars, blank to generate): ")
	if err != nil {
		return nil, err
	}
	if card == "" {
		card, err = sh.svc.GenerateCardNumber()
		if err != nil {
			fmt.Fprintln(sh.out, describe(err))
			return nil, err
		}
		fmt.Fprintf(sh.out, "Your new card number is: %s\n", card)
	}
	if _, ok := sh.svc.FindByCard(card); ok {
		fmt.Fprintln(sh.out, describe(models.ErrDuplicateCard))
		return nil, models.ErrDuplicateCard
	}

	pin, err := sh.prompt("Enter new PIN (4 digits): ")
	if err != nil {
		return nil, err
	}
	confirm, err := sh.prompt("Confirm new PIN: ")
	if err != nil {
		return nil, err
	}
	if pin != confirm {
		fmt.Fprintln(sh.out, describe(models.ErrPINMismatch))
		return nil, models.ErrPINMismatch
	}
	raw, err := sh.prompt("Enter initial balance: $")
	if err != nil {
		return nil, err
	}
	balance, err := parseAmount(raw)
	if err != nil {
		fmt.Fprintln(sh.out, describe(models.ErrInvalidBalance))
		return nil, models.ErrInvalidBalance
	}

	account, err := sh.svc.Register(card, pin, confirm, balance)
	if err != nil {
		fmt.Fprintln(sh.out, describe(err))
		return nil, err
	}
	fmt.Fprint(sh.out, "Registration successful! You can now login.\n\n")
	return account, nil
}

func (sh *Shell) login() (*models.Account, error) {
	card, err := sh.prompt("Enter your card number: ")
	if err != nil {
		return nil, err
	}
	account, err := sh.svc.Login(card, func(attempt int) (string, error) {
		if attempt > 1 {
			fmt.Fprintln(sh.out, "Incorrect PIN. Try again.")
		}
		return sh.prompt("Enter your PIN: ")
	})
	if err != nil {
		if errors.Is(err, models.ErrAuthFailed) {
			fmt.Fprintln(sh.out, "Incorrect PIN.")
		}
		fmt.Fprintln(sh.out, describe(err))
		return nil, err
	}
	fmt.Fprint(sh.out, "Login successful!\n\n")
	return account, nil
}

const menuText = `
--- ATM Menu ---
1. Balance Inquiry
2. Deposit
3. Cash Withdrawal
4. PIN Change
5. Transaction History
6. Exit
Choose an option: `

// menu loops until the user exits or input ends; both flush the store.
func (sh *Shell) menu(account *models.Account) error {
	for {
		fmt.Fprint(sh.out, menuText)
		choice, err := sh.readLine()
		if errors.Is(err, io.EOF) {
			return sh.exit()
		}
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			sh.balanceInquiry(account)
		case "2":
			err = sh.deposit(account)
		case "3":
			err = sh.withdraw(account)
		case "4":
			err = sh.changePIN(account)
		case "5":
			sh.history(account)
		case "6":
			return sh.exit()
		default:
			fmt.Fprintln(sh.out, "Invalid choice. Please try again.")
		}
		if errors.Is(err, io.EOF) {
			return sh.exit()
		}
		if err != nil {
			return err
		}
	}
}

func (sh *Shell) balanceInquiry(account *models.Account) {
	balance, err := sh.svc.BalanceInquiry(account)
	fmt.Fprintf(sh.out, "Your current balance is: $%s\n", balance.StringFixed(2))
	if err != nil {
		fmt.Fprintln(sh.out, describe(err))
	}
}

func (sh *Shell) deposit(account *models.Account) error {
	amount, ok, err := sh.promptAmount("Enter amount to deposit: $")
	if err != nil || !ok {
		return err
	}
	if err := sh.svc.Deposit(account, amount); err != nil {
		fmt.Fprintln(sh.out, describe(err))
		return nil
	}
	fmt.Fprintf(sh.out, "Amount successfully deposited: $%s\n", amount.StringFixed(2))
	return nil
}

func (sh *Shell) withdraw(account *models.Account) error {
	amount, ok, err := sh.promptAmount("Enter amount to withdraw: $")
	if err != nil || !ok {
		return err
	}
	if err := sh.svc.Withdraw(account, amount); err != nil {
		fmt.Fprintln(sh.out, describe(err))
		return nil
	}
	fmt.Fprintf(sh.out, "Please take your cash: $%s\n", amount.StringFixed(2))
	return nil
}

func (sh *Shell) changePIN(account *models.Account) error {
	oldPIN, err := sh.prompt("Enter old PIN: ")
	if err != nil {
		return err
	}
	newPIN, err := sh.prompt("Enter new PIN (4 digits): ")
	if err != nil {
		return err
	}
	confirm, err := sh.prompt("Confirm new PIN: ")
	if err != nil {
		return err
	}
	if err := sh.svc.ChangePIN(account, oldPIN, newPIN, confirm); err != nil {
		if errors.Is(err, models.ErrPINMismatch) {
			fmt.Fprintln(sh.out, "New PIN and confirmation do not match.")
			return nil
		}
		fmt.Fprintln(sh.out, describe(err))
		return nil
	}
	fmt.Fprintln(sh.out, "PIN successfully changed.")
	return nil
}

func (sh *Shell) history(account *models.Account) {
	transactions, ok := sh.svc.History(account)
	if !ok {
		fmt.Fprintln(sh.out, "No transactions found.")
		return
	}
	fmt.Fprint(sh.out, "\n--- Transaction History ---\n")
	for i, t := range transactions {
		fmt.Fprintf(sh.out, "%d. %s: $%s on %s\n", i+1, t.Type, t.Amount.StringFixed(2), timestamp.Format(t.Time))
	}
}

func (sh *Shell) exit() error {
	fmt.Fprintln(sh.out, "Thank you for using the ATM Simulation System.")
	if err := sh.svc.Flush(); err != nil {
		fmt.Fprintln(sh.out, describe(err))
		return err
	}
	return nil
}

func (sh *Shell) prompt(text string) (string, error) {
	fmt.Fprint(sh.out, text)
	return sh.readLine()
}

// promptAmount reads a money amount; ok is false (and "Invalid amount." shown)
// when the input does not parse.
func (sh *Shell) promptAmount(text string) (decimal.Decimal, bool, error) {
	raw, err := sh.prompt(text)
	if err != nil {
		return decimal.Zero, false, err
	}
	amount, err := parseAmount(raw)
	if err != nil {
		fmt.Fprintln(sh.out, describe(models.ErrInvalidAmount))
		return decimal.Zero, false, nil
	}
	return amount, true, nil
}

func (sh *Shell) readLine() (string, error) {
	if !sh.in.Scan() {
		if err := sh.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(sh.in.Text()), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", models.ErrInvalidAmount, s)
	}
	return d, nil
}
