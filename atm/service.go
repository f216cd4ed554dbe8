package atm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alovak/cardflow-atm/atm/models"
	"github.com/alovak/cardflow-atm/internal/cardgen"
	"github.com/alovak/cardflow-atm/internal/security"
	"github.com/alovak/cardflow-atm/internal/timestamp"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// PINSource supplies the PIN typed for a login attempt (1-based).
type PINSource func(attempt int) (string, error)

// Service owns every account mutation and every save. mu serializes them so
// a shutdown flush never reads an account while an operation is changing it.
type Service struct {
	repo   *Repository
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
	// dirty is set when memory holds changes the store has not saved yet.
	dirty bool
}

func NewService(logger *slog.Logger, repo *Repository, cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "service")),
		now:    timestamp.Now,
	}
}

func (s *Service) FindByCard(card string) (*models.Account, bool) {
	return s.repo.FindByCard(card)
}

// AtCapacity reports whether registration would fail with ErrCapacityExceeded.
func (s *Service) AtCapacity() bool {
	return s.repo.Full()
}

// Login resolves card and checks up to cfg.PINAttempts PINs from pins,
// stopping at the first match.
func (s *Service) Login(card string, pins PINSource) (*models.Account, error) {
	account, ok := s.repo.FindByCard(card)
	if !ok {
		s.logger.Info("login rejected", slog.String("card", cardgen.MaskPAN(card)), slog.String("reason", "card not found"))
		return nil, models.ErrCardNotFound
	}

	attempts := s.cfg.PINAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		pin, err := pins(attempt)
		if err != nil {
			return nil, fmt.Errorf("reading pin: %w", err)
		}
		if security.PINMatches(account.PIN, pin) {
			s.logger.Info("login succeeded", slog.String("card", cardgen.MaskPAN(card)), slog.Int("attempt", attempt))
			return account, nil
		}
	}

	s.logger.Warn("login failed", slog.String("card", cardgen.MaskPAN(card)), slog.Int("attempts", attempts))
	return nil, models.ErrAuthFailed
}

// Register creates a new account with an AccountCreated entry for the
// initial balance. If the store cannot be saved the account is removed again.
func (s *Service) Register(card, pin, confirmPIN string, initialBalance decimal.Decimal) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo.Full() {
		return nil, models.ErrCapacityExceeded
	}
	if err := cardgen.ValidateCardNumber(card); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCardNumber, err)
	}
	if _, ok := s.repo.FindByCard(card); ok {
		return nil, models.ErrDuplicateCard
	}
	if pin != confirmPIN {
		return nil, models.ErrPINMismatch
	}
	if err := security.ValidatePIN(pin); err != nil {
		return nil, models.ErrInvalidPIN
	}
	if initialBalance.IsNegative() {
		return nil, models.ErrInvalidBalance
	}

	account := &models.Account{
		CardNumber: card,
		PIN:        pin,
		Balance:    initialBalance,
	}
	account.Record(models.TransactionAccountCreated, initialBalance, s.now())

	if err := s.repo.Add(account); err != nil {
		return nil, fmt.Errorf("adding account: %w", err)
	}
	if err := s.repo.Save(context.Background()); err != nil {
		s.repo.Remove(card)
		s.logger.Error("registration rolled back", slog.String("card", cardgen.MaskPAN(card)), "err", err)
		return nil, err
	}
	s.dirty = false

	s.logger.Info("account registered", slog.String("card", cardgen.MaskPAN(card)))
	return account, nil
}

// GenerateCardNumber returns an unused Luhn-valid card number under the configured BIN.
func (s *Service) GenerateCardNumber() (string, error) {
	bin := s.cfg.BINPrefix
	// Ensure BIN is valid; fallback to default if misconfigured.
	if err := cardgen.ValidateBIN(bin); err != nil {
		bin = DefaultConfig().BINPrefix
	}
	pan, err := cardgen.GenerateUniquePAN(bin, 16, 10, s.repo.Exists)
	if err != nil {
		return "", fmt.Errorf("generate unique pan: %w", err)
	}
	return pan, nil
}

// BalanceInquiry logs the inquiry, saves and returns the balance. The
// balance is returned even when saving fails.
func (s *Service) BalanceInquiry(account *models.Account) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Record(models.TransactionBalanceInquiry, decimal.Zero, s.now())
	return account.Balance, s.save(account, models.TransactionBalanceInquiry)
}

func (s *Service) Deposit(account *models.Account, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	account.Balance = account.Balance.Add(amount)
	account.Record(models.TransactionDeposit, amount, s.now())
	return s.save(account, models.TransactionDeposit)
}

// Withdraw debits amount. An attempt above the balance is recorded as
// WithdrawalFailed but not saved right away; it reaches storage with the next
// save.
func (s *Service) Withdraw(account *models.Account, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if amount.GreaterThan(account.Balance) {
		account.Record(models.TransactionWithdrawalFailed, amount, s.now())
		s.dirty = true
		s.logger.Info("withdrawal declined", slog.String("card", cardgen.MaskPAN(account.CardNumber)), slog.String("amount", amount.StringFixed(2)))
		return models.ErrInsufficientBalance
	}
	account.Balance = account.Balance.Sub(amount)
	account.Record(models.TransactionWithdrawal, amount, s.now())
	return s.save(account, models.TransactionWithdrawal)
}

func (s *Service) ChangePIN(account *models.Account, oldPIN, newPIN, confirmPIN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !security.PINMatches(account.PIN, oldPIN) {
		return models.ErrOldPINIncorrect
	}
	if newPIN != confirmPIN {
		return models.ErrPINMismatch
	}
	if err := security.ValidatePIN(newPIN); err != nil {
		return models.ErrInvalidPIN
	}
	account.PIN = newPIN
	account.Record(models.TransactionPINChange, decimal.Zero, s.now())
	return s.save(account, models.TransactionPINChange)
}

// History returns the account's transactions oldest first; ok is false when there are none.
func (s *Service) History(account *models.Account) (transactions []models.Transaction, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := account.History()
	return h, len(h) > 0
}

// Flush saves the store if it holds unsaved changes. A session that changed
// nothing leaves the stored data untouched, including records dropped while
// loading a damaged file.
func (s *Service) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := s.repo.Save(context.Background()); err != nil {
		s.logger.Error("flushing accounts", "err", err)
		return err
	}
	s.dirty = false
	return nil
}

// Dirty reports whether there are changes Flush would save.
func (s *Service) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// save persists the store after a mutation; callers hold s.mu.
func (s *Service) save(account *models.Account, kind models.TransactionType) error {
	s.dirty = true
	err := s.repo.Save(context.Background())
	if err != nil {
		s.logger.Error("saving accounts",
			slog.String("card", cardgen.MaskPAN(account.CardNumber)),
			slog.String("op", string(kind)),
			"err", err)
		return err
	}
	s.dirty = false
	s.logger.Debug("accounts saved", slog.String("card", cardgen.MaskPAN(account.CardNumber)), slog.String("op", string(kind)))
	return nil
}
