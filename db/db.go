// Package db provides the relational metadata tier backed by PostgreSQL via
// GORM. It holds tenancy entities (workspaces, projects, API keys), workspace
// deployment configuration, evaluations, labeling queues, model costs, and
// signal triggers. The columnar analytics tier lives in package ch.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tracefold/app-server/config"
)

// DB wraps the GORM handle for the relational store.
type DB struct {
	Gorm *gorm.DB
}

// Open connects to PostgreSQL and configures the connection pool.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxConnections / 2)
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DB{Gorm: gormDB}, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (d *DB) Ping() error {
	sqlDB, err := d.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
