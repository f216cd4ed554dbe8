package atm_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/alovak/cardflow-atm/atm"
	"github.com/alovak/cardflow-atm/atm/models"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// TestPGRepositoryRoundTrip saves accounts to Postgres and loads them back.
// Skips unless DB_DSN is provided and REPO_BACKEND=pg.
func TestPGRepositoryRoundTrip(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}
	fixedClock(t)
	ctx := context.Background()

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	repo := atm.NewPGRepository(db, 100)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.Load(ctx))
	svc := atm.NewService(testLogger(), repo, atm.DefaultConfig())

	card, err := svc.GenerateCardNumber()
	require.NoError(t, err)
	acc, err := svc.Register(card, "1234", "1234", dec("100.10"))
	require.NoError(t, err)
	require.NoError(t, svc.Deposit(acc, dec("0.90")))
	require.ErrorIs(t, svc.Withdraw(acc, dec("500")), models.ErrInsufficientBalance)
	require.NoError(t, svc.Flush())

	var count int
	require.NoError(t, db.QueryRow(`select count(*) from atm.transactions where card_number=$1`, card).Scan(&count))
	require.Equal(t, 3, count)

	loaded := atm.NewPGRepository(db, 100)
	require.NoError(t, loaded.Load(ctx))
	got, ok := loaded.FindByCard(card)
	require.True(t, ok)
	require.True(t, dec("101").Equal(got.Balance))
	require.Len(t, got.Transactions, 3)
	require.Equal(t, models.TransactionWithdrawalFailed, got.Transactions[2].Type)
	require.True(t, acc.Transactions[0].Time.Equal(got.Transactions[0].Time))

	require.True(t, repo.Remove(card))
	require.NoError(t, repo.Save(ctx))
}
