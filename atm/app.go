package atm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alovak/cardflow-atm/atm/models"
	"github.com/alovak/cardflow-atm/internal/flatfile"
	"github.com/alovak/cardflow-atm/internal/timestamp"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"
)

// App is the main application, it owns the account store and the service
// and is responsible for loading state at start and flushing it at shutdown.
type App struct {
	logger *slog.Logger
	config *Config
	repo   *Repository
	svc    *Service
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "atm"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		logger: logger,
		config: config,
	}
}

func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting app...")

	if tz := a.config.TimeZone; tz != "" {
		if loc, err := timestamp.LoadLocation(tz); err == nil {
			timestamp.SetDefaultLocation(loc)
		} else {
			a.logger.Info("invalid TimeZone; using local time", slog.String("tz", tz), slog.Any("err", err))
		}
	}

	switch a.config.Backend {
	case "", "file":
		a.repo = NewFileRepository(a.config.DataFile, a.config.MaxAccounts)
	case "pg":
		if a.config.DSN == "" {
			return fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", a.config.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(1)
		db.SetMaxOpenConns(2)
		a.repo = NewPGRepository(db, a.config.MaxAccounts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.repo.Ping(pingCtx); err != nil {
			db.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := a.repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return err
		}
	default:
		return fmt.Errorf("unsupported REPO_BACKEND=%s", a.config.Backend)
	}

	if err := a.load(ctx); err != nil {
		a.repo.Close()
		return err
	}

	a.svc = NewService(a.logger, a.repo, a.config)
	a.logger.Info("accounts loaded", slog.String("backend", a.backend()), slog.Int("accounts", a.repo.Count()))
	return nil
}

// load tolerates a damaged or unreadable data file (logged, store kept as
// read so far). Nothing is written back until a session changes something. For the pg backend a failed load is fatal since the next
// save would wipe the tables.
func (a *App) load(ctx context.Context) error {
	err := a.repo.Load(ctx)
	if err == nil {
		return nil
	}
	var perr *flatfile.ParseError
	switch {
	case errors.As(err, &perr):
		a.logger.Warn("account data truncated at malformed record",
			slog.Int("line", perr.Line),
			slog.Int("accounts", a.repo.Count()),
			"err", perr.Err)
		return nil
	case errors.Is(err, models.ErrLoad) && a.backend() == "file":
		a.logger.Warn("account data unreadable; continuing with the accounts read before the failure",
			slog.Int("accounts", a.repo.Count()),
			"err", err)
		return nil
	default:
		return err
	}
}

func (a *App) backend() string {
	if a.config.Backend == "" {
		return "file"
	}
	return a.config.Backend
}

func (a *App) Service() *Service {
	return a.svc
}

// NewSession returns a shell for one terminal session, tagged with its own session id in logs.
func (a *App) NewSession(in io.Reader, out io.Writer) *Shell {
	logger := a.logger.With(slog.String("session", uuid.NewString()))
	return NewShell(logger, a.svc, in, out)
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.svc != nil {
		// Flush logs its own failure and is a no-op when the session saved everything.
		_ = a.svc.Flush()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Error("closing repository", "err", err)
		}
	}

	a.logger.Info("app stopped")
}
