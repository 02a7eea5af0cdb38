//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/db"
	"github.com/unilib/apiserver/internal/server"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestLoanLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	librarianEmail := fmt.Sprintf("librarian_%d@uni.edu", suffix)
	borrowerEmail := fmt.Sprintf("student_%d@uni.edu", suffix)

	register(t, librarianEmail)
	require.NoError(t, promote(librarianEmail, "LIBRARIAN"))
	staffToken := login(t, librarianEmail)

	borrowerToken := register(t, borrowerEmail)

	var book bookResponse
	status := call(t, http.MethodPost, "/api/v1/books", staffToken, map[string]any{
		"title":  "The Left Hand of Darkness",
		"author": "Ursula K. Le Guin",
		"copies": 1,
	}, &book)
	require.Equal(t, http.StatusCreated, status)
	require.NotZero(t, book.ID)
	assert.Equal(t, "AVAILABLE", book.Status)
	assert.Equal(t, 1, book.AvailableCopies)

	var loan loanResponse
	status = call(t, http.MethodPost, "/api/v1/loans", borrowerToken, map[string]any{"bookId": book.ID}, &loan)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "ACTIVE", loan.Status)

	call(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), "", nil, &book)
	assert.Equal(t, "BORROWED", book.Status)
	assert.Equal(t, 0, book.AvailableCopies)

	status = call(t, http.MethodPost, "/api/v1/loans", borrowerToken, map[string]any{"bookId": book.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, status, "no copy left to lend")

	status = call(t, http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/return", loan.ID), borrowerToken, nil, &loan)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RETURN_PENDING", loan.Status)

	call(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), "", nil, &book)
	assert.Equal(t, "BORROWED", book.Status, "copy is held until the return is confirmed")

	status = call(t, http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/confirm", loan.ID), borrowerToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = call(t, http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/confirm", loan.ID), staffToken, nil, &loan)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RETURNED", loan.Status)

	call(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), "", nil, &book)
	assert.Equal(t, "AVAILABLE", book.Status)
	assert.Equal(t, 1, book.AvailableCopies)

	var unread struct {
		Count int `json:"count"`
	}
	call(t, http.MethodGet, "/api/v1/notifications/unread-count", borrowerToken, nil, &unread)
	assert.GreaterOrEqual(t, unread.Count, 1)
}

func TestFeedFollowsChannels(t *testing.T) {
	suffix := time.Now().UnixNano()
	ownerToken := register(t, fmt.Sprintf("owner_%d@uni.edu", suffix))
	readerToken := register(t, fmt.Sprintf("reader_%d@uni.edu", suffix))

	var channel struct {
		ID int `json:"id"`
	}
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, "/api/v1/channels", ownerToken,
		map[string]any{"name": "Reading club"}, &channel))
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, fmt.Sprintf("/api/v1/channels/%d/posts", channel.ID), ownerToken,
		map[string]any{"content": "This month: Piranesi"}, nil))

	var feed feedResponse
	call(t, http.MethodGet, "/api/v1/feed", readerToken, nil, &feed)
	assert.Zero(t, feed.Meta.Total)

	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, fmt.Sprintf("/api/v1/channels/%d/follow", channel.ID), readerToken, nil, nil))
	assert.Equal(t, http.StatusConflict, call(t, http.MethodPost, fmt.Sprintf("/api/v1/channels/%d/follow", channel.ID), readerToken, nil, nil))

	call(t, http.MethodGet, "/api/v1/feed", readerToken, nil, &feed)
	require.Equal(t, 1, feed.Meta.Total)
	assert.Equal(t, "This month: Piranesi", feed.Data[0].Content)
}

type bookResponse struct {
	ID              int    `json:"id"`
	Status          string `json:"status"`
	AvailableCopies int    `json:"availableCopies"`
}

type loanResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

type feedResponse struct {
	Data []struct {
		Content string `json:"content"`
	} `json:"data"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type authResponse struct {
	Token string `json:"token"`
}

const testPassword = "testpass123!"

func register(t *testing.T, email string) string {
	t.Helper()

	var parsed authResponse
	status := call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":     email,
		"firstName": "Test",
		"lastName":  "Reader",
		"password":  testPassword,
	}, &parsed)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, parsed.Token)
	return parsed.Token
}

func login(t *testing.T, email string) string {
	t.Helper()

	var parsed authResponse
	status := call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": testPassword,
	}, &parsed)
	require.Equal(t, http.StatusOK, status)
	return parsed.Token
}

// call sends a JSON request and decodes a successful response into out.
func call(t *testing.T, method, path, token string, payload any, out any) int {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(raw, out), strings.TrimSpace(string(raw)))
	}
	return resp.StatusCode
}

func promote(email, role string) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = conn.ExecContext(ctx, "UPDATE users SET role = $1, updated_at = NOW() WHERE email = $2", role, email)
	return err
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "unilib")
	_ = os.Setenv("DB_PASSWORD", "unilib")
	_ = os.Setenv("DB_NAME", "unilib")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("REDIS_ADDR", "localhost:6379")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start(context.Background())
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
