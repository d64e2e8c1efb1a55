//go:build e2e

package e2e

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
)

var testCtx *TestContext

func TestMain(m *testing.M) {
	flag.Parse()

	if os.Getenv("DOCKER_HOST") == "" && os.Getenv("TESTCONTAINERS_DOCKER_SOCKET") == "" {
		// testcontainers will use default docker socket, which should work on most systems
		log.Println("Using default Docker socket for testcontainers")
	}

	ctx := context.Background()
	testCtx = &TestContext{}

	log.Println("Starting Postgres container...")
	var err error
	testCtx.PostgresContainer, testCtx.ConnString, err = setupPostgresE(ctx)
	if err != nil {
		log.Fatalf("Failed to start postgres: %v", err)
	}
	log.Println("Postgres container started")

	log.Println("Starting test server...")
	if err := startServerE(testCtx); err != nil {
		_ = testCtx.PostgresContainer.Terminate(ctx)
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Println("Test server started at:", testCtx.TestServer.URL)

	exitCode := m.Run()

	testCtx.TestServer.Close()
	testCtx.Server.Close()
	testCtx.Store.Close()
	if err := testCtx.PostgresContainer.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate postgres container: %v", err)
	}

	log.Println("E2E tests completed with exit code:", exitCode)
	os.Exit(exitCode)
}
