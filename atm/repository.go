package atm

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alovak/cardflow-atm/atm/models"
	"github.com/alovak/cardflow-atm/internal/cardgen"
	"github.com/alovak/cardflow-atm/internal/flatfile"
	"github.com/alovak/cardflow-atm/internal/timestamp"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Repository is the account store. Accounts live in memory keyed by card
// number; Save rewrites the whole store to the flat file, or to Postgres
// when the repository was built with a db.
type Repository struct {
	mu          sync.RWMutex
	accounts    map[string]*models.Account
	order       []string
	maxAccounts int

	path string
	db   *sql.DB
}

// NewFileRepository constructs a repository persisted to the flat file at path.
func NewFileRepository(path string, maxAccounts int) *Repository {
	return &Repository{
		accounts:    make(map[string]*models.Account),
		maxAccounts: maxAccounts,
		path:        path,
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB, maxAccounts int) *Repository {
	return &Repository{
		accounts:    make(map[string]*models.Account),
		maxAccounts: maxAccounts,
		db:          db,
	}
}

// Load replaces the in-memory store with the persisted one. A missing file
// yields an empty store. Malformed data keeps the accounts read before it and
// returns a *flatfile.ParseError; other failures wrap models.ErrLoad.
func (r *Repository) Load(ctx context.Context) error {
	if r.db == nil {
		return r.loadFile()
	}
	return r.loadPG(ctx)
}

func (r *Repository) loadFile() error {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.replace(nil)
		return nil
	}
	if err != nil {
		r.replace(nil)
		return fmt.Errorf("%w: %w", models.ErrLoad, err)
	}
	defer f.Close()

	accounts, err := flatfile.Decode(f, r.maxAccounts)
	r.replace(accounts)
	if err != nil {
		var perr *flatfile.ParseError
		if errors.As(err, &perr) {
			return perr
		}
		return fmt.Errorf("%w: %w", models.ErrLoad, err)
	}
	return nil
}

func (r *Repository) loadPG(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := sql.NullInt64{Int64: int64(r.maxAccounts), Valid: r.maxAccounts > 0}
	rows, err := r.db.QueryContext(ctx, `SELECT card_number, pin, balance FROM atm.accounts ORDER BY position LIMIT $1`, limit)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrLoad, err)
	}
	defer rows.Close()

	var accounts []*models.Account
	byCard := make(map[string]*models.Account)
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.CardNumber, &a.PIN, &a.Balance); err != nil {
			return fmt.Errorf("%w: %w", models.ErrLoad, err)
		}
		accounts = append(accounts, a)
		byCard[a.CardNumber] = a
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrLoad, err)
	}

	txRows, err := r.db.QueryContext(ctx, `SELECT card_number, type, amount, created_at FROM atm.transactions ORDER BY card_number, seq`)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrLoad, err)
	}
	defer txRows.Close()
	for txRows.Next() {
		var card, kind string
		var t models.Transaction
		var createdAt time.Time
		if err := txRows.Scan(&card, &kind, &t.Amount, &createdAt); err != nil {
			return fmt.Errorf("%w: %w", models.ErrLoad, err)
		}
		a, ok := byCard[card]
		if !ok {
			continue
		}
		a.Record(models.TransactionType(kind), t.Amount, timestamp.Wall(createdAt))
	}
	if err := txRows.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrLoad, err)
	}

	r.replace(accounts)
	return nil
}

// Save persists every account and its full history, replacing what was stored before.
func (r *Repository) Save(ctx context.Context) error {
	accounts := r.Accounts()
	if r.db == nil {
		return r.saveFile(accounts)
	}
	return r.savePG(ctx, accounts)
}

// saveFile writes to a temp file next to the destination and renames it over.
func (r *Repository) saveFile(accounts []*models.Account) error {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	if err := flatfile.Encode(tmp, accounts); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	return nil
}

func (r *Repository) savePG(ctx context.Context, accounts []*models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	defer tx.Rollback()
	// set per-transaction statement timeout to avoid long hangs
	if _, err := tx.ExecContext(ctx, `set local statement_timeout = '5s'`); err != nil {
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM atm.transactions`); err != nil {
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM atm.accounts`); err != nil {
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}

	for pos, a := range accounts {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO atm.accounts(card_number, pin, balance, position)
            VALUES ($1,$2,$3,$4)
        `, a.CardNumber, a.PIN, a.Balance, pos)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: card %s: %w", models.ErrSave, cardgen.MaskPAN(a.CardNumber), models.ErrDuplicateCard)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrSave, err)
		}
		for seq, t := range a.Transactions {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO atm.transactions(tx_id, card_number, seq, type, amount, created_at)
                VALUES ($1,$2,$3,$4,$5,$6)
            `, uuid.New(), a.CardNumber, seq, string(t.Type), t.Amount, t.Time.In(timestamp.DefaultLocation()))
			if err != nil {
				return fmt.Errorf("%w: %w", models.ErrSave, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrSave, err)
	}
	return nil
}

// EnsureSchema creates the atm schema and tables when missing. No-op for the file backend.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// FindByCard returns the live account for card. The account's fields are not
// guarded by r.mu: mutate it only through Service, which serializes changes
// with Save so Accounts never clones an account mid-update.
func (r *Repository) FindByCard(card string) (*models.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[card]
	return a, ok
}

// Exists reports whether a card number is already registered.
func (r *Repository) Exists(card string) (bool, error) {
	_, ok := r.FindByCard(card)
	return ok, nil
}

// Add inserts a new account, enforcing card uniqueness and the store capacity.
func (r *Repository) Add(account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.CardNumber]; ok {
		return fmt.Errorf("card %s: %w", cardgen.MaskPAN(account.CardNumber), models.ErrDuplicateCard)
	}
	if r.maxAccounts > 0 && len(r.accounts) >= r.maxAccounts {
		return models.ErrCapacityExceeded
	}
	r.accounts[account.CardNumber] = account
	r.order = append(r.order, account.CardNumber)
	return nil
}

// Remove drops an account; it reports whether the card was present.
func (r *Repository) Remove(card string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[card]; !ok {
		return false
	}
	delete(r.accounts, card)
	for i, c := range r.order {
		if c == card {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Count returns the number of accounts in the store.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// Full reports whether the store has reached its capacity.
func (r *Repository) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxAccounts > 0 && len(r.accounts) >= r.maxAccounts
}

// Accounts returns deep copies of all accounts in insertion order.
func (r *Repository) Accounts() []*models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Account, 0, len(r.order))
	for _, card := range r.order {
		out = append(out, r.accounts[card].Clone())
	}
	return out
}

// Ping reports backend readiness; the file backend is always ready.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) replace(accounts []*models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[string]*models.Account, len(accounts))
	r.order = r.order[:0]
	for _, a := range accounts {
		if _, dup := r.accounts[a.CardNumber]; dup {
			continue
		}
		r.accounts[a.CardNumber] = a
		r.order = append(r.order, a.CardNumber)
	}
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
