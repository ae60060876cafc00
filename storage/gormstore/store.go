// Package gormstore persists devices, interfaces, samples, aggregates, alarm
// rules and alarms through gorm. Postgres is the production engine; SQLite
// serves single-node installs and tests.
package gormstore

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vpbank/snmp_monitor/models"
)

// ErrNotFound is returned when a looked-up row does not exist. It is the
// shared models sentinel so that callers need not import this package.
var ErrNotFound = models.ErrNotFound

// Tables lists every persisted model in migration order.
var Tables = []interface{}{
	&models.Device{},
	&models.Credential{},
	&models.InterfaceInfo{},
	&models.Sample{},
	&models.HourlyAggregate{},
	&models.DailyAggregate{},
	&models.AggregationRun{},
	&models.AlarmRule{},
	&models.Alarm{},
}

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database named by driver and dsn.
func Open(driver, dsn string, debug bool) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case DriverPostgres, "":
		dial = postgres.Open(dsn)
	case DriverSQLite:
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unknown driver %q", driver)
	}
	level := gormlogger.Silent
	if debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dial, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection: an in-memory database exists per connection and
		// SQLite serialises writers anyway.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.Migrator().AutoMigrate(Tables...); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

// Store bundles the repositories over one database handle. The embedded
// repositories satisfy the collector and scheduler store contracts; rules
// and alarms are reached through their own fields.
type Store struct {
	*GormDeviceRepository
	*GormInterfaceRepository
	*GormSampleRepository
	*GormAggregateRepository

	Rules  *GormRuleRepository
	Alarms *GormAlarmRepository

	db *gorm.DB
}

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{
		GormDeviceRepository:    NewGormDeviceRepository(db),
		GormInterfaceRepository: NewGormInterfaceRepository(db),
		GormSampleRepository:    NewGormSampleRepository(db),
		GormAggregateRepository: NewGormAggregateRepository(db),
		Rules:                   NewGormRuleRepository(db),
		Alarms:                  NewGormAlarmRepository(db),
		db:                      db,
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
