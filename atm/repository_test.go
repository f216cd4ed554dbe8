package atm_test

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alovak/cardflow-atm/atm"
	"github.com/alovak/cardflow-atm/atm/models"
	"github.com/alovak/cardflow-atm/internal/flatfile"
	"github.com/stretchr/testify/require"
)

func writeData(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "atmdata.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRepositoryLoadMissingFile(t *testing.T) {
	repo := atm.NewFileRepository(filepath.Join(t.TempDir(), "nope.txt"), 100)
	require.NoError(t, repo.Load(context.Background()))
	require.Equal(t, 0, repo.Count())
	require.Empty(t, repo.Accounts())
}

func TestRepositoryLoadUnreadablePath(t *testing.T) {
	// a directory opens but cannot be read as a file
	repo := atm.NewFileRepository(t.TempDir(), 100)
	err := repo.Load(context.Background())
	require.ErrorIs(t, err, models.ErrLoad)
	require.Equal(t, 0, repo.Count())
}

func TestRepositoryLoadKeepsAccountsBeforeReadFailure(t *testing.T) {
	path := writeData(t, "111 1111 10.00 0\n"+strings.Repeat("9", 70*1024)+"\n")

	repo := atm.NewFileRepository(path, 100)
	err := repo.Load(context.Background())
	require.ErrorIs(t, err, models.ErrLoad)
	require.ErrorIs(t, err, bufio.ErrTooLong)
	require.Equal(t, 1, repo.Count())
}

func TestRepositorySaveLoadRoundTrip(t *testing.T) {
	fixedClock(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atmdata.txt")
	repo := atm.NewFileRepository(path, 100)

	at := time.Date(2030, time.January, 2, 3, 4, 5, 0, time.UTC)
	a := &models.Account{CardNumber: "1234567890", PIN: "1111", Balance: dec("150")}
	a.Record(models.TransactionAccountCreated, dec("100"), at)
	a.Record(models.TransactionDeposit, dec("50"), at.Add(time.Minute))
	b := &models.Account{CardNumber: "42", PIN: "0000", Balance: dec("0.5")}

	require.NoError(t, repo.Add(a))
	require.NoError(t, repo.Add(b))
	require.NoError(t, repo.Save(ctx))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1234567890 1111 150.00 2\n"+
		"AccountCreated 100.00 2030-01-02 03:04:05\n"+
		"Deposit 50.00 2030-01-02 03:05:05\n"+
		"42 0000 0.50 0\n", string(raw))

	loaded := atm.NewFileRepository(path, 100)
	require.NoError(t, loaded.Load(ctx))
	accounts := loaded.Accounts()
	require.Len(t, accounts, 2)
	require.Equal(t, "1234567890", accounts[0].CardNumber)
	require.Equal(t, "42", accounts[1].CardNumber)
	require.True(t, dec("150").Equal(accounts[0].Balance))
	require.Len(t, accounts[0].Transactions, 2)
	require.True(t, at.Equal(accounts[0].Transactions[0].Time))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRepositoryLoadTruncatesAtMalformedRecord(t *testing.T) {
	fixedClock(t)
	path := writeData(t, "111 1111 10.00 1\n"+
		"AccountCreated 10.00 2030-01-02 03:04:05\n"+
		"222 2222 20.00 2\n"+
		"AccountCreated 20.00 2030-01-02 03:04:05\n"+
		"Bogus 1.00 2030-01-02 03:04:05\n"+
		"333 3333 30.00 0\n")

	repo := atm.NewFileRepository(path, 100)
	err := repo.Load(context.Background())

	var perr *flatfile.ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, 5, perr.Line)
	require.Equal(t, 1, repo.Count())
	_, ok := repo.FindByCard("111")
	require.True(t, ok)
	_, ok = repo.FindByCard("333")
	require.False(t, ok)
}

func TestRepositoryLoadReplacesStore(t *testing.T) {
	path := writeData(t, "111 1111 10.00 0\n")
	repo := atm.NewFileRepository(path, 100)
	require.NoError(t, repo.Add(&models.Account{CardNumber: "999", PIN: "9999"}))

	require.NoError(t, repo.Load(context.Background()))
	require.Equal(t, 1, repo.Count())
	_, ok := repo.FindByCard("999")
	require.False(t, ok)
}

func TestRepositoryAddRemove(t *testing.T) {
	repo := atm.NewFileRepository(filepath.Join(t.TempDir(), "atmdata.txt"), 2)

	require.NoError(t, repo.Add(&models.Account{CardNumber: "1", PIN: "1111"}))
	require.ErrorIs(t, repo.Add(&models.Account{CardNumber: "1", PIN: "2222"}), models.ErrDuplicateCard)
	require.NoError(t, repo.Add(&models.Account{CardNumber: "2", PIN: "1111"}))
	require.True(t, repo.Full())
	require.ErrorIs(t, repo.Add(&models.Account{CardNumber: "3", PIN: "1111"}), models.ErrCapacityExceeded)

	ok, err := repo.Exists("2")
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, repo.Remove("1"))
	require.False(t, repo.Remove("1"))
	require.False(t, repo.Full())

	require.NoError(t, repo.Add(&models.Account{CardNumber: "3", PIN: "1111"}))
	accounts := repo.Accounts()
	require.Equal(t, "2", accounts[0].CardNumber)
	require.Equal(t, "3", accounts[1].CardNumber)
}

func TestRepositoryAccountsAreCopies(t *testing.T) {
	repo := atm.NewFileRepository(filepath.Join(t.TempDir(), "atmdata.txt"), 0)
	require.NoError(t, repo.Add(&models.Account{CardNumber: "1", PIN: "1111", Balance: dec("1")}))

	cp := repo.Accounts()[0]
	cp.Balance = dec("1000")
	cp.Record(models.TransactionDeposit, dec("999"), time.Now())

	live, _ := repo.FindByCard("1")
	require.True(t, dec("1").Equal(live.Balance))
	require.Empty(t, live.Transactions)
	require.False(t, repo.Full())
}

func TestRepositoryFileBackendHasNoDB(t *testing.T) {
	repo := atm.NewFileRepository(filepath.Join(t.TempDir(), "atmdata.txt"), 100)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}
