package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"fleet-monitor/locintel/internal/auth"
	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/store"
)

// demoKeys are used when SEED_API_KEYS is empty.
var demoKeys = []string{
	"parent_demo_key=owner:parent-demo",
	"kid_demo_key=entity:kid-demo",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	rs, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	defer rs.Close()
	fmt.Println("✓ Connected")

	entries := seedEntries()
	step1APIKeys(ctx, rs, entries)
	step2Verify(ctx, rs, entries)

	fmt.Println("\n✅ Redis seeded successfully")
}

func seedEntries() []string {
	var out []string
	for _, part := range strings.Split(os.Getenv("SEED_API_KEYS"), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return demoKeys
	}
	return out
}

func step1APIKeys(ctx context.Context, rs *store.RedisStore, entries []string) {
	fmt.Println("\n── Step 1: Seeding API keys ────────────────────")

	// Key pattern: auth:key:{api_key} → owner:{id} | entity:{id}
	// The authenticator looks these up after static keys and its cache.
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if _, valid := auth.ParsePrincipal(value); !ok || key == "" || !valid {
			log.Fatalf("Malformed entry %q, want key=owner:<id> or key=entity:<id>", entry)
		}
		if err := rs.SetAPIKey(ctx, key, value); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-30s → %s\n", key, value)
	}
}

func step2Verify(ctx context.Context, rs *store.RedisStore, entries []string) {
	fmt.Println("\n── Step 2: Verification ────────────────────────")

	for _, entry := range entries {
		key, want, _ := strings.Cut(entry, "=")
		got, err := rs.GetAPIKey(ctx, key)
		if err != nil {
			log.Fatalf("Verification failed for %s: %v", key, err)
		}
		if got != want {
			log.Fatalf("Verification failed for %s: got %q, want %q", key, got, want)
		}
	}
	fmt.Printf("  ✓ %d API keys verified\n", len(entries))
}
