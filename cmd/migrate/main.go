package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/app"
	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/platform/cache"
	"github.com/kaskita/kaskita/internal/platform/db"
	"github.com/kaskita/kaskita/internal/shared"
)

func main() {
	issue := flag.Bool("issue-session", false, "issue a bearer session instead of applying the schema")
	orgFlag := flag.String("org", "", "organization id for -issue-session")
	userFlag := flag.String("user", "", "user id for -issue-session")
	roleFlag := flag.String("role", string(shared.RoleAdmin), "role for -issue-session")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping migrate")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if *issue {
		token, err := issueSession(ctx, cfg, *orgFlag, *userFlag, *roleFlag)
		if err != nil {
			logger.Error("issue session", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, ledger.Schema); err != nil {
		logger.Error("apply schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema applied")
}

func issueSession(ctx context.Context, cfg *app.Config, org, user, role string) (string, error) {
	orgID, err := uuid.Parse(org)
	if err != nil {
		return "", fmt.Errorf("invalid -org: %w", err)
	}
	userID, err := uuid.Parse(user)
	if err != nil {
		return "", fmt.Errorf("invalid -user: %w", err)
	}
	r := shared.Role(strings.ToUpper(role))
	if !r.Valid() {
		return "", fmt.Errorf("invalid -role %q", role)
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()
	sessions := shared.NewSessionManager(client, cfg.SessionSecret, cfg.SessionTTL)
	return sessions.Issue(ctx, shared.Principal{UserID: userID, OrganizationID: orgID, Role: r})
}
