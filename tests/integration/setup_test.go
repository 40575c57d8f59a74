package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hazemnasser/tank-orders/internal/models"
	"github.com/hazemnasser/tank-orders/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		filePath := filepath.Join(migrationDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// testSite is the standing fixture most workflow tests need: a customer and
// a store with an active assignment.
type testSite struct {
	Customer   *models.Customer
	Store      *models.Store
	Assignment *models.StoreAssignment
}

func seedSite(t *testing.T, db *sql.DB, email string) testSite {
	t.Helper()
	ctx := context.Background()

	customer, err := store.CreateCustomer(ctx, db, email, "Test Customer")
	if err != nil {
		t.Fatalf("Create customer: %v", err)
	}

	s, err := store.CreateStore(ctx, db, "Test Store")
	if err != nil {
		t.Fatalf("Create store: %v", err)
	}

	assignment, err := store.CreateStoreAssignment(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("Create store assignment: %v", err)
	}

	return testSite{Customer: customer, Store: s, Assignment: assignment}
}

func seedInventory(t *testing.T, db *sql.DB, storeID int64, item models.ItemRef, quantity int) *models.StoreInventory {
	t.Helper()

	inv, err := store.CreateInventory(context.Background(), db, storeID, item, quantity)
	if err != nil {
		t.Fatalf("Create inventory %s: %v", item, err)
	}
	return inv
}

func seedOrder(t *testing.T, db *sql.DB, customerID int64, items ...store.OrderItemRequest) *models.Order {
	t.Helper()

	order, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{
		CustomerID:    customerID,
		Priority:      3,
		PaymentMethod: "cash",
		Items:         items,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return order
}

func tankItem(tankTypeID int64, quantity int, price int64) store.OrderItemRequest {
	return store.OrderItemRequest{
		Item:      models.TankRef(tankTypeID),
		Quantity:  quantity,
		UnitPrice: decimal.NewFromInt(price),
	}
}

func stockItem(itemID int64, quantity int, price int64) store.OrderItemRequest {
	return store.OrderItemRequest{
		Item:      models.StockItemRef(itemID),
		Quantity:  quantity,
		UnitPrice: decimal.NewFromInt(price),
	}
}
