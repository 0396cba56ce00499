//go:build integration

package web

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"prepaid-subscription/internal/infra/db/migrations"
	"prepaid-subscription/internal/infra/db/postgres"
)

var testPool *pgxpool.Pool

const testAPIKey = "integration-test-key"

func TestMain(m *testing.M) {
	// 1. Start Docker container and get its ID
	containerID, dsn := setupTestDatabase()

	// 2. Connect to the database
	var err error
	for i := 0; i < 15; i++ {
		testPool, err = postgres.Connect(context.Background(), dsn, 5)
		if err == nil {
			break
		}
		log.Println("Waiting for web test database to be ready...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		teardownTestDatabase(containerID)
		log.Fatalf("Unable to connect to web test database: %v", err)
	}

	// 3. Apply schema
	if err := migrations.Up(dsn); err != nil {
		testPool.Close()
		teardownTestDatabase(containerID)
		log.Fatalf("could not apply migrations for web tests: %s", err)
	}
	log.Println("Web test database is ready.")

	// 4. Run the tests and exit
	exitCode := m.Run()

	// 5. Cleanup
	testPool.Close()
	teardownTestDatabase(containerID)
	os.Exit(exitCode)
}

func setupTestDatabase() (containerID, dsn string) {
	dbName := "web_test_db"
	dbUser := "web_test_user"
	dbPassword := "password"
	dbPort := "5432"

	cmd := exec.Command("docker", "run", "-d", "--rm",
		"--network", "host",
		"-e", fmt.Sprintf("POSTGRES_DB=%s", dbName),
		"-e", fmt.Sprintf("POSTGRES_USER=%s", dbUser),
		"-e", fmt.Sprintf("POSTGRES_PASSWORD=%s", dbPassword),
		"postgres:14-alpine",
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		log.Fatalf("could not start postgres container for web tests: %v.\n Is Docker running?", err)
	}
	containerID = strings.TrimSpace(out.String())
	dsn = fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable", dbUser, dbPassword, dbPort, dbName)
	return
}

func teardownTestDatabase(containerID string) {
	log.Printf("Stopping web test container %s", containerID)
	err := exec.Command("docker", "stop", containerID).Run()
	if err != nil {
		log.Printf("Warning: could not stop postgres container %s: %v", containerID, err)
	}
}
