package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"ui-annotator/api/internal/logger"
	"ui-annotator/api/internal/store"
)

// openRepo connects, pings and applies the schema.
func openRepo(ctx context.Context, dsn string) (*store.ComponentRepo, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db.Ping: %w", err)
	}
	logger.Info("db", "connected: %s", safeDSNSummary(dsn))

	repo := store.NewComponentRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	return repo, db, nil
}

// resolveDSN prefers the configured URL, then POSTGRES_* / PG* parts.
func resolveDSN(configured string) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	if os.Getenv("PGHOST") == "" && os.Getenv("POSTGRES_DB") == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getenvDefault("POSTGRES_USER", "annotator"), os.Getenv("POSTGRES_PASSWORD")),
		Host:     net.JoinHostPort(getenvDefault("PGHOST", "db"), getenvDefault("PGPORT", "5432")),
		Path:     "/" + getenvDefault("POSTGRES_DB", "annotator"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}

// purgeLoop deletes expired components every interval until ctx is done.
func purgeLoop(ctx context.Context, repo *store.ComponentRepo, retention, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := repo.PurgeOlderThan(ctx, retention)
		switch {
		case err != nil:
			logger.Warn("db", "purge: %v", err)
		case n > 0:
			logger.Info("db", "purged %d components older than %s", n, retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
