package postgresqltest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/database"
)

// TestDatabaseSetup holds the connection to the test database.
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL and applies the schema.
// It returns nil without error when the variable is unset.
func NewTestDatabase(ctx context.Context) (*TestDatabaseSetup, error) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		return nil, nil
	}

	db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolConfig{MaxConns: 10, MinConns: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	setup := &TestDatabaseSetup{DB: db}
	if err := setup.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return setup, nil
}

func (t *TestDatabaseSetup) migrate(ctx context.Context) error {
	_, file, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations", "001_leave_ledger.up.sql")

	schema, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := t.DB.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TruncateAllTables removes ledger rows but keeps the seeded leave types.
func (t *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := t.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"leave_requests",
		"leave_balances",
		"employees",
	}

	for _, table := range tables {
		_, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

// InsertEmployee adds an active employee.
func (t *TestDatabaseSetup) InsertEmployee(ctx context.Context, id, code string) error {
	_, err := t.DB.Exec(ctx, `
		INSERT INTO employees (id, employee_code, full_name, hire_date)
		VALUES ($1, $2, $3, CURRENT_DATE)
	`, id, code, "Employee "+code)
	return err
}

// Close closes the database connection.
func (t *TestDatabaseSetup) Close() {
	t.DB.Close()
}
