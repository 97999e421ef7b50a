package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/comichub/notify/internal/follows"
	"github.com/MarcoPoloResearchLab/comichub/notify/internal/notifications"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config selects the backing store. Path applies to sqlite; DSN and Replicas
// apply to postgres and mysql.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	Replicas []string
}

// Open connects to the configured database, registers read replicas and
// brings the schema up to date.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	primary, err := dialector(driver, cfg.Path, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(primary, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	} else if len(cfg.Replicas) > 0 {
		if err := registerReplicas(db, driver, cfg.Replicas); err != nil {
			return nil, err
		}
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized",
		zap.String("driver", driver),
		zap.Int("replicas", len(cfg.Replicas)))
	return db, nil
}

// OpenSQLite opens a sqlite database at path.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	return Open(Config{Driver: DriverSQLite, Path: path}, logger)
}

// Migrate creates or updates every table the service owns or reads and then
// applies the recorded migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&notifications.IndividualNotification{},
		&notifications.BroadcastNotification{},
		&notifications.UserBroadcastRead{},
		&follows.Follow{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func dialector(driver, path, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return sqlite.Open(path), nil
	case DriverPostgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("database dsn is required for %s", driver)
		}
		return postgres.Open(dsn), nil
	case DriverMySQL:
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("database dsn is required for %s", driver)
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// registerReplicas routes plain reads to the replicas. Reads inside a
// transaction or with a locking clause stay on the primary.
func registerReplicas(db *gorm.DB, driver string, replicaDSNs []string) error {
	replicas := make([]gorm.Dialector, 0, len(replicaDSNs))
	for _, dsn := range replicaDSNs {
		replica, err := dialector(driver, "", dsn)
		if err != nil {
			return err
		}
		replicas = append(replicas, replica)
	}
	return db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	}))
}
