// Package database opens the gorm connections used to read the game database
// and to write the journal.
package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/glowe/dartviz/internal/config"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned for a driver other than sqlite or postgres.
var ErrUnknownDriver = errors.New("unknown database driver")

// ReaderPragmas suit a sqlite file owned by another process.
var ReaderPragmas = []string{
	"PRAGMA busy_timeout = 5000;",
	"PRAGMA query_only = ON;",
}

// WriterPragmas suit a sqlite file owned by this process.
var WriterPragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA cache_size = -8000;",
	"PRAGMA temp_store = MEMORY;",
}

// Options selects and configures a connection.
type Options struct {
	Driver     string
	SQLitePath string
	Postgres   config.DBConfig
	// Pragmas run after a sqlite connection opens.
	Pragmas []string
}

// Manager handles a database connection.
type Manager struct {
	DB      *gorm.DB
	SqlDB   *sql.DB
	IsValid bool
	Driver  string
	Logger  zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect opens and pings the connection described by opts.
func (m *Manager) Connect(opts Options) error {
	var (
		db  *gorm.DB
		err error
	)

	switch opts.Driver {
	case DriverSQLite:
		db, err = GetSqliteDB(opts.SQLitePath, opts.Pragmas)
	case DriverPostgres:
		m.Logger.Debug().Str("host", opts.Postgres.Host).Str("database", opts.Postgres.Database).Msg("Connecting to Postgres DB")
		db, err = GetPostgresDB(opts.Postgres)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to open %s DB: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to validate connection: %w", err)
	}

	if opts.Driver == DriverPostgres {
		sqlDB.SetMaxOpenConns(10)
	}

	m.DB = db
	m.SqlDB = sqlDB
	m.Driver = opts.Driver
	m.IsValid = true
	m.Logger.Info().Str("driver", opts.Driver).Msg("Connected to database")
	return nil
}

// Migrate creates or updates the tables of models.
func (m *Manager) Migrate(models ...any) error {
	if m.DB == nil {
		return errors.New("database not connected")
	}
	if err := m.DB.AutoMigrate(models...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	m.Logger.Debug().Int("models", len(models)).Msg("Schema migrated")
	return nil
}

// Close releases the connection.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	m.IsValid = false
	return m.SqlDB.Close()
}

// GetPostgresDB returns a connection to the Postgres database.
func GetPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database and applies pragmas.
// If path is empty, uses a private in-memory database.
func GetSqliteDB(path string, pragmas []string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// One connection, so pragmas hold for every query and an in-memory
	// database is not split across pooled connections.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}
