package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/adapter/repo"
)

func main() {
	var (
		tokenFlag    string
		providerFlag string
	)
	flag.StringVar(&tokenFlag, "token", "", "API token for the provider (falls back to REPLICATE_API_TOKEN)")
	flag.StringVar(&providerFlag, "provider", repo.ProviderReplicate, "provider to configure")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = repo.ProviderReplicate
	}

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN"))
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "provider token is required via -token or REPLICATE_API_TOKEN")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	creds := repo.NewCredentialRepository(pool)
	if err := creds.SetToken(ctx, provider, token); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s token: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s token stored successfully\n", provider)
}
