package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-monitor/locintel/internal/config"
	"fleet-monitor/locintel/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Connecting to PostgreSQL...")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure PostgreSQL is running:\n  docker-compose up -d timescaledb", err)
	}
	fmt.Println("✓ Connected")

	timescale := step1Extensions(ctx, pool)
	step2OwnerTables(ctx, pool)
	step3PositionTable(ctx, pool, timescale)
	step4ZoneAndAlertTables(ctx, pool)
	step5Indexes(ctx, pool)
	step6Seed(ctx, cfg)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

// step1Extensions reports whether TimescaleDB is available. Plain
// PostgreSQL works; position_samples then stays a regular table.
func step1Extensions(ctx context.Context, pool *pgxpool.Pool) bool {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;"); err != nil {
		fmt.Printf("  ! timescaledb unavailable, continuing without hypertable: %v\n", err)
		return false
	}
	fmt.Println("  ✓ timescaledb extension")
	return true
}

func step2OwnerTables(ctx context.Context, pool *pgxpool.Pool) {
	fmt.Println("\n── Step 2: owners and tracked_entities ─────────")

	execOrFatal(ctx, pool, `
		CREATE TABLE IF NOT EXISTS owners (
			id               TEXT        PRIMARY KEY,
			display_name     TEXT        NOT NULL DEFAULT '',
			push_token       TEXT        NOT NULL DEFAULT '',

			-- Periodic anomaly sweeps cover only these owners
			anomaly_enabled  BOOLEAN     NOT NULL DEFAULT false,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, "owners table created")

	execOrFatal(ctx, pool, `
		CREATE TABLE IF NOT EXISTS tracked_entities (
			id            TEXT        PRIMARY KEY,
			owner_id      TEXT        NOT NULL REFERENCES owners (id),
			display_name  TEXT        NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, "tracked_entities table created")
}

func step3PositionTable(ctx context.Context, pool *pgxpool.Pool, timescale bool) {
	fmt.Println("\n── Step 3: position_samples table ──────────────")

	// A hypertable needs the time column in every unique index.
	execOrFatal(ctx, pool, `
		CREATE TABLE IF NOT EXISTS position_samples (
			id           TEXT             NOT NULL,
			entity_id    TEXT             NOT NULL REFERENCES tracked_entities (id),
			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,

			-- Device time, or server time when the device sent none
			recorded_at  TIMESTAMPTZ      NOT NULL,
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			PRIMARY KEY (id, recorded_at)
		);
	`, "position_samples table created")

	if timescale {
		execOrFatal(ctx, pool, `
			SELECT create_hypertable(
				'position_samples',
				'recorded_at',
				if_not_exists => TRUE
			);
		`, "position_samples converted to hypertable")
	}
}

func step4ZoneAndAlertTables(ctx context.Context, pool *pgxpool.Pool) {
	fmt.Println("\n── Step 4: zones and alerts ────────────────────")

	execOrFatal(ctx, pool, `
		CREATE TABLE IF NOT EXISTS geofence_zones (
			id             TEXT        PRIMARY KEY,
			entity_id      TEXT        NOT NULL REFERENCES tracked_entities (id),
			label          TEXT        NOT NULL,

			-- GeoJSON Polygon, outer ring closed, (lng, lat) order
			geojson        JSONB       NOT NULL,

			-- Soft delete: inactive zones keep their alert history
			active         BOOLEAN     NOT NULL DEFAULT true,
			last_alert_at  TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			-- Creation order for breach evaluation
			seq            BIGSERIAL
		);
	`, "geofence_zones table created")

	execOrFatal(ctx, pool, `
		CREATE TABLE IF NOT EXISTS geofence_alerts (
			id          TEXT             PRIMARY KEY,
			entity_id   TEXT             NOT NULL REFERENCES tracked_entities (id),
			zone_id     TEXT             NOT NULL,

			-- Snapshot of the label at breach time
			zone_label  TEXT             NOT NULL,
			latitude    DOUBLE PRECISION NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			created_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			read        BOOLEAN          NOT NULL DEFAULT false
		);
	`, "geofence_alerts table created")

	execOrFatal(ctx, pool, `
		CREATE TABLE IF NOT EXISTS anomaly_alerts (
			id            TEXT        PRIMARY KEY,
			entity_id     TEXT        NOT NULL REFERENCES tracked_entities (id),
			summary       TEXT        NOT NULL,

			-- Unparsed reply from the judgment service
			raw_result    TEXT        NOT NULL DEFAULT '',
			acknowledged  BOOLEAN     NOT NULL DEFAULT false,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, "anomaly_alerts table created")
}

func step5Indexes(ctx context.Context, pool *pgxpool.Pool) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_entities_owner",
			sql:  `CREATE INDEX IF NOT EXISTS idx_entities_owner ON tracked_entities (owner_id);`,
			why:  "query: owner map, alert joins",
		},
		{
			name: "idx_positions_entity_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_positions_entity_time
				  ON position_samples (entity_id, recorded_at DESC);`,
			why: "query: anomaly window, latest position",
		},
		{
			name: "idx_zones_entity_active",
			sql: `CREATE INDEX IF NOT EXISTS idx_zones_entity_active
				  ON geofence_zones (entity_id, seq)
				  WHERE active;`,
			why: "query: active zones for breach checks (partial index)",
		},
		{
			name: "idx_geofence_alerts_entity_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_geofence_alerts_entity_time
				  ON geofence_alerts (entity_id, created_at DESC);`,
			why: "query: alert history",
		},
		{
			name: "idx_geofence_alerts_unread",
			sql: `CREATE INDEX IF NOT EXISTS idx_geofence_alerts_unread
				  ON geofence_alerts (entity_id)
				  WHERE NOT read;`,
			why: "query: unread count (partial index)",
		},
		{
			name: "idx_anomaly_alerts_open",
			sql: `CREATE INDEX IF NOT EXISTS idx_anomaly_alerts_open
				  ON anomaly_alerts (entity_id, created_at DESC)
				  WHERE NOT acknowledged;`,
			why: "query: unacknowledged anomaly alerts (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, pool, idx.sql,
			fmt.Sprintf("%-34s ← %s", idx.name, idx.why),
		)
	}
}

// step6Seed creates the SEED_ENTITIES owners and entities, if any.
func step6Seed(ctx context.Context, cfg *config.Config) {
	fmt.Println("\n── Step 6: Seed entities ───────────────────────")

	if len(cfg.SeedEntities) == 0 {
		fmt.Println("  - SEED_ENTITIES empty, nothing to seed")
		return
	}

	st, err := store.NewTimescaleStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Seed connection failed: %v", err)
	}
	defer st.Close()

	n, err := store.Seed(ctx, st, cfg.SeedEntities)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	fmt.Printf("  ✓ %d entities seeded\n", n)
}

func execOrFatal(ctx context.Context, pool *pgxpool.Pool, sql, label string) {
	if _, err := pool.Exec(ctx, sql); err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}
