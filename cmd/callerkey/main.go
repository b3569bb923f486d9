package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/adapter/repo"
	"genserver/internal/domain"
	"genserver/internal/middleware"
)

func main() {
	var (
		callerFlag string
		tierFlag   string
	)
	flag.StringVar(&callerFlag, "caller", "", "caller ID to mint a key for (defaults to a fresh UUID)")
	flag.StringVar(&tierFlag, "tier", string(domain.TierFree), "quota tier to assign (free or pro)")
	flag.Parse()

	tier := domain.QuotaTier(strings.TrimSpace(strings.ToLower(tierFlag)))
	if !tier.IsValid() {
		fmt.Fprintf(os.Stderr, "unsupported tier %q\n", tierFlag)
		os.Exit(1)
	}

	callerID := strings.TrimSpace(callerFlag)
	if callerID == "" {
		callerID = uuid.NewString()
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}
	apiKey := "gs_" + hex.EncodeToString(raw)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	keys := repo.NewKeyRepository(pool)
	if err := keys.Mint(ctx, middleware.HashAPIKey(apiKey), callerID, tier); err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint key: %v\n", err)
		os.Exit(1)
	}

	// The raw key is printed once and never stored.
	fmt.Printf("caller: %s\ntier:   %s\nkey:    %s\n", callerID, tier, apiKey)
}
