//go:build integration

// Package testutil starts disposable infrastructure for integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/backend-pos/internal/db"
)

// DBIntegrationSuite is a testify suite backed by a migrated Postgres container.
type DBIntegrationSuite struct {
	suite.Suite
	Pool             *pgxpool.Pool
	ConnectionString string
	container        *postgres.PostgresContainer
}

// SetupSuite starts Postgres and applies the embedded migrations.
func (s *DBIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pos_test"),
		postgres.WithUsername("pos"),
		postgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err, "start postgres container")
	s.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err, "postgres connection string")
	s.Require().NoError(db.Migrate(connStr), "migrate test database")

	pool, err := pgxpool.New(ctx, connStr)
	s.Require().NoError(err, "connect test database")

	s.Pool = pool
	s.ConnectionString = connStr
}

// TearDownSuite closes the pool and removes the container.
func (s *DBIntegrationSuite) TearDownSuite() {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

// TruncateTables empties the given tables between tests.
func (s *DBIntegrationSuite) TruncateTables(tables ...string) {
	for _, table := range tables {
		_, err := s.Pool.Exec(context.Background(), fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
		s.Require().NoError(err, "truncate %s", table)
	}
}
