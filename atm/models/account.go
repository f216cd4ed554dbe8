package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxTransactions caps the per-account history; older entries are evicted.
const MaxTransactions = 100

type TransactionType string

const (
	TransactionAccountCreated   TransactionType = "AccountCreated"
	TransactionBalanceInquiry   TransactionType = "BalanceInquiry"
	TransactionDeposit          TransactionType = "Deposit"
	TransactionWithdrawal       TransactionType = "Withdrawal"
	TransactionWithdrawalFailed TransactionType = "WithdrawalFailed"
	TransactionPINChange        TransactionType = "PINChange"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionAccountCreated, TransactionBalanceInquiry, TransactionDeposit,
		TransactionWithdrawal, TransactionWithdrawalFailed, TransactionPINChange:
		return true
	}
	return false
}

type Transaction struct {
	Type   TransactionType
	Amount decimal.Decimal
	Time   time.Time
}

type Account struct {
	CardNumber   string
	PIN          string
	Balance      decimal.Decimal
	Transactions []Transaction
}

// Record appends a transaction, dropping the oldest one first when the
// history already holds MaxTransactions entries.
func (a *Account) Record(kind TransactionType, amount decimal.Decimal, at time.Time) {
	if n := len(a.Transactions); n >= MaxTransactions {
		copy(a.Transactions, a.Transactions[n-MaxTransactions+1:])
		a.Transactions = a.Transactions[:MaxTransactions-1]
	}
	a.Transactions = append(a.Transactions, Transaction{Type: kind, Amount: amount, Time: at})
}

// History returns a copy of the transactions, oldest first.
func (a *Account) History() []Transaction {
	out := make([]Transaction, len(a.Transactions))
	copy(out, a.Transactions)
	return out
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Transactions = a.History()
	return &cp
}
