package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsInOrder(t *testing.T) {
	acc := &Account{CardNumber: "1234567890", PIN: "1111"}
	base := time.Date(2030, time.January, 1, 9, 0, 0, 0, time.UTC)

	acc.Record(TransactionAccountCreated, decimal.NewFromInt(100), base)
	acc.Record(TransactionDeposit, decimal.NewFromInt(50), base.Add(time.Second))

	require.Len(t, acc.Transactions, 2)
	require.Equal(t, TransactionAccountCreated, acc.Transactions[0].Type)
	require.Equal(t, TransactionDeposit, acc.Transactions[1].Type)
	require.True(t, acc.Transactions[1].Time.After(acc.Transactions[0].Time))
}

func TestRecord_EvictsOldestAtCapacity(t *testing.T) {
	acc := &Account{CardNumber: "1234567890", PIN: "1111"}
	base := time.Date(2030, time.January, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < MaxTransactions; i++ {
		acc.Record(TransactionDeposit, decimal.NewFromInt(int64(i+1)), base.Add(time.Duration(i)*time.Second))
	}
	require.Len(t, acc.Transactions, MaxTransactions)

	acc.Record(TransactionWithdrawal, decimal.NewFromInt(999), base.Add(time.Hour))

	require.Len(t, acc.Transactions, MaxTransactions)
	// the first entry (amount 1) is gone, the rest shifted by one
	for i := 0; i < MaxTransactions-1; i++ {
		require.True(t, decimal.NewFromInt(int64(i+2)).Equal(acc.Transactions[i].Amount), "index %d", i)
	}
	last := acc.Transactions[MaxTransactions-1]
	require.Equal(t, TransactionWithdrawal, last.Type)
	require.True(t, decimal.NewFromInt(999).Equal(last.Amount))
}

func TestRecord_SlidingWindowKeepsMostRecent(t *testing.T) {
	acc := &Account{}
	base := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3*MaxTransactions+7; i++ {
		acc.Record(TransactionBalanceInquiry, decimal.NewFromInt(int64(i)), base)
	}
	require.Len(t, acc.Transactions, MaxTransactions)
	require.True(t, decimal.NewFromInt(int64(2*MaxTransactions+7)).Equal(acc.Transactions[0].Amount))
	require.True(t, decimal.NewFromInt(int64(3*MaxTransactions+6)).Equal(acc.Transactions[MaxTransactions-1].Amount))
}

func TestHistoryAndClone_AreCopies(t *testing.T) {
	acc := &Account{CardNumber: "1", PIN: "1111", Balance: decimal.NewFromInt(5)}
	acc.Record(TransactionDeposit, decimal.NewFromInt(5), time.Now())

	h := acc.History()
	h[0].Type = TransactionWithdrawal
	require.Equal(t, TransactionDeposit, acc.Transactions[0].Type)

	cp := acc.Clone()
	cp.Transactions[0].Type = TransactionPINChange
	cp.PIN = "2222"
	require.Equal(t, TransactionDeposit, acc.Transactions[0].Type)
	require.Equal(t, "1111", acc.PIN)
}

func TestTransactionType_Valid(t *testing.T) {
	require.True(t, TransactionWithdrawalFailed.Valid())
	require.True(t, TransactionPINChange.Valid())
	require.False(t, TransactionType("Transfer").Valid())
	require.False(t, TransactionType("").Valid())
}
