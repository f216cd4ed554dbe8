package atm

// Config is a configuration for the ATM application
type Config struct {
	// DataFile is the flat file used by the file backend.
	DataFile string
	// Backend selects the account store: "file" (default) or "pg".
	Backend string
	// DSN is the Postgres connection string for the pg backend.
	DSN string
	// TimeZone is an IANA timezone name for transaction timestamps; empty means local time.
	TimeZone string
	// MaxAccounts is the logical capacity of the account store.
	MaxAccounts int
	// PINAttempts is how many PIN entries a login allows.
	PINAttempts int
	// BINPrefix is used when generating card numbers for new users (6/8/9 digits).
	BINPrefix string
}

func DefaultConfig() *Config {
	return &Config{
		DataFile:    "atmdata.txt",
		Backend:     "file",
		MaxAccounts: 100,
		PINAttempts: 3,
		BINPrefix:   "421234",
	}
}
