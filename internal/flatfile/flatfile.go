// Package flatfile reads and writes the ATM account store as plain text:
//
//	<cardNumber> <pin> <balance> <transactionCount>
//	<type> <amount> <YYYY-MM-DD HH:MM:SS>
//
// with one transaction line per counted transaction. Money is always written
// with two decimals.
package flatfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alovak/cardflow-atm/atm/models"
	"github.com/alovak/cardflow-atm/internal/cardgen"
	"github.com/alovak/cardflow-atm/internal/timestamp"
	"github.com/shopspring/decimal"
)

const maxPINField = 4

// ParseError reports where decoding stopped. Accounts fully read before Line
// are still returned alongside it.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Encode writes every account and its full history.
func Encode(w io.Writer, accounts []*models.Account) error {
	bw := bufio.NewWriter(w)
	for _, a := range accounts {
		if _, err := fmt.Fprintf(bw, "%s %s %s %d\n", a.CardNumber, a.PIN, a.Balance.StringFixed(2), len(a.Transactions)); err != nil {
			return err
		}
		for _, t := range a.Transactions {
			if _, err := fmt.Fprintf(bw, "%s %s %s\n", t.Type, t.Amount.StringFixed(2), timestamp.Format(t.Time)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Decode reads accounts until EOF. On a malformed record it stops and returns
// the accounts completed so far with a *ParseError; the partial account is
// dropped. Reading also stops once maxAccounts (if > 0) accounts are loaded
// and more data follows.
func Decode(r io.Reader, maxAccounts int) ([]*models.Account, error) {
	sc := bufio.NewScanner(r)
	line := 0
	next := func() ([]string, bool) {
		for sc.Scan() {
			line++
			if fields := strings.Fields(sc.Text()); len(fields) > 0 {
				return fields, true
			}
		}
		return nil, false
	}

	var out []*models.Account
	seen := make(map[string]struct{})
	for {
		fields, ok := next()
		if !ok {
			break
		}
		if maxAccounts > 0 && len(out) >= maxAccounts {
			return out, &ParseError{Line: line, Err: fmt.Errorf("account limit %d reached", maxAccounts)}
		}
		acc, count, err := parseHeader(fields)
		if err != nil {
			return out, &ParseError{Line: line, Err: err}
		}
		if _, dup := seen[acc.CardNumber]; dup {
			return out, &ParseError{Line: line, Err: fmt.Errorf("duplicate card number %s", cardgen.MaskPAN(acc.CardNumber))}
		}
		acc.Transactions = make([]models.Transaction, 0, count)
		for i := 0; i < count; i++ {
			fields, ok := next()
			if !ok {
				return out, &ParseError{Line: line, Err: fmt.Errorf("unexpected end of data: want %d transactions, got %d", count, i)}
			}
			tx, err := parseTransaction(fields)
			if err != nil {
				return out, &ParseError{Line: line, Err: err}
			}
			acc.Transactions = append(acc.Transactions, tx)
		}
		seen[acc.CardNumber] = struct{}{}
		out = append(out, acc)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("reading accounts: %w", err)
	}
	return out, nil
}

func parseHeader(fields []string) (*models.Account, int, error) {
	if len(fields) != 4 {
		return nil, 0, fmt.Errorf("account header wants 4 fields, got %d", len(fields))
	}
	card, pin := fields[0], fields[1]
	if err := cardgen.ValidateCardNumber(card); err != nil {
		return nil, 0, err
	}
	if len(pin) > maxPINField {
		return nil, 0, fmt.Errorf("pin field longer than %d characters", maxPINField)
	}
	balance, err := parseMoney(fields[2])
	if err != nil {
		return nil, 0, fmt.Errorf("balance: %w", err)
	}
	count, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, 0, fmt.Errorf("transaction count: %w", err)
	}
	if count < 0 || count > models.MaxTransactions {
		return nil, 0, fmt.Errorf("transaction count must be 0..%d (got %d)", models.MaxTransactions, count)
	}
	return &models.Account{CardNumber: card, PIN: pin, Balance: balance}, count, nil
}

func parseTransaction(fields []string) (models.Transaction, error) {
	if len(fields) != 4 {
		return models.Transaction{}, fmt.Errorf("transaction wants 4 fields, got %d", len(fields))
	}
	kind := models.TransactionType(fields[0])
	if !kind.Valid() {
		return models.Transaction{}, fmt.Errorf("unknown transaction type %q", fields[0])
	}
	amount, err := parseMoney(fields[1])
	if err != nil {
		return models.Transaction{}, fmt.Errorf("amount: %w", err)
	}
	at, err := timestamp.Parse(fields[2] + " " + fields[3])
	if err != nil {
		return models.Transaction{}, err
	}
	return models.Transaction{Type: kind, Amount: amount, Time: at}, nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative value %s", s)
	}
	return d, nil
}
