package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"

	"mallify-hub/internal/service"
	jwtutil "mallify-hub/pkg/jwt"
)

func runMigrateCommand(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	direction := fs.String("direction", "up", "up or down")
	steps := fs.Int("steps", 1, "number of migrations to roll back with -direction=down")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := readConfig()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}

	migrationDir := "/migrations"
	if _, statErr := os.Stat(migrationDir); statErr != nil {
		migrationDir = "./migrations"
	}

	migrator, err := migrate.New("file://"+migrationDir, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	switch *direction {
	case "up":
		err = migrator.Up()
	case "down":
		if *steps <= 0 {
			return errors.New("steps must be greater than 0")
		}
		err = migrator.Steps(-*steps)
	default:
		return fmt.Errorf("unknown direction %q", *direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations failed: %w", err)
	}

	fmt.Println("migrations applied successfully")
	return nil
}

// runIssueTokenCommand signs an access token with the configured private key, for operators and local testing.
func runIssueTokenCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "user id (random when empty)")
	role := fs.String("role", service.RoleBoutiqueOwner, "admin or boutique_owner")
	boutiqueID := fs.String("boutique", "", "boutique id, required for boutique_owner")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	keyFile := fs.String("key", "", "private key PEM file, overrides auth.jwt_private_key_file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch *role {
	case service.RoleAdmin:
	case service.RoleBoutiqueOwner:
		if _, err := uuid.Parse(strings.TrimSpace(*boutiqueID)); err != nil {
			return errors.New("boutique must be a valid uuid for boutique_owner tokens")
		}
	default:
		return fmt.Errorf("unsupported role %q", *role)
	}
	if *ttl <= 0 {
		return errors.New("ttl must be greater than 0")
	}

	path := strings.TrimSpace(*keyFile)
	if path == "" {
		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("load config failed: %w", err)
		}
		path = cfg.Auth.PrivateKeyFile
	}
	privateKey, err := jwtutil.LoadPrivateKey(path)
	if err != nil {
		return fmt.Errorf("load jwt private key failed: %w", err)
	}

	subject := strings.TrimSpace(*userID)
	if subject == "" {
		subject = uuid.NewString()
	}
	token, err := jwtutil.GenerateAccessToken(jwtutil.NewClaims(subject, *role, strings.TrimSpace(*boutiqueID), *ttl), privateKey)
	if err != nil {
		return fmt.Errorf("sign token failed: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func runHealthcheck() int {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	port := strings.TrimSpace(os.Getenv("MALLIFY_SERVER_PORT"))
	if port == "" {
		port = "8080"
	}

	resp, err := client.Get("http://localhost:" + port + "/health/ready")
	if err != nil {
		return 1
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func sanitizeCLIError(err error) string {
	if err == nil {
		return ""
	}

	text := strings.ReplaceAll(err.Error(), "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return strings.TrimSpace(text)
}
