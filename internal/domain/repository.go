// Package domain defines the core types and interfaces for Lendguard.
package domain

import (
	"context"
	"time"
)

// Repository is the relational store backing rules, the name list and the
// audit log.
type Repository interface {
	RuleStore
	NameListStore
	AuditLog

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// QueryTimeout bounds every persistence call made during an evaluation.
	QueryTimeout time.Duration
}
