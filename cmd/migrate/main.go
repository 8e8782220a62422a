package main

import (
	"context"
	"flag"
	"log"
	"os"

	"grant-assistant-be/internal/model"
	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/internal/repository/implementation"
	"grant-assistant-be/pkg/database"
	"grant-assistant-be/pkg/proposal/contextstore"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	fromRedis := flag.String("from-redis", "", "copy every key from this Redis URL before migrating")
	redisPrefix := flag.String("redis-prefix", "grant-assistant:", "key prefix used on the source Redis")
	verbose := flag.Bool("v", false, "log every SQL statement")
	flag.Parse()

	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, *verbose)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Schema
	log.Println("Step 1: Running AutoMigrate for the kv table...")
	if err := db.AutoMigrate(&model.KVEntry{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	ctx := context.Background()
	repo := implementation.NewGormKVRepository(db)

	// 4. Optional copy from a Redis deployment
	if *fromRedis != "" {
		log.Println("Step 2: Copying documents from Redis...")
		opt, err := redis.ParseURL(*fromRedis)
		if err != nil {
			log.Fatalf("Error: Invalid Redis URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		copied, err := copyAll(ctx, implementation.NewRedisKVRepository(rdb, *redisPrefix), repo)
		if err != nil {
			log.Fatalf("Error: Copy failed after %d keys: %v", copied, err)
		}
		log.Printf("Copied %d keys", copied)
	}

	// 5. Bring the stored context to the current schema
	log.Println("Step 3: Migrating stored context...")
	sysLogger := logger.NewZapLogger("logs/migrate.log", false)
	defer sysLogger.Sync()

	report := contextstore.New(repo, sysLogger).Load(ctx)
	switch {
	case report.Malformed:
		log.Printf("Warn: Stored context was unreadable and has been reset")
	case report.Migrated:
		log.Printf("Context migrated from %s (v%d -> v%d), dropped fields: %v",
			report.Source, report.FromVersion, report.ToVersion, report.DroppedFields)
	default:
		log.Printf("Context already current (source: %q)", report.Source)
	}

	log.Println("Success: Database migration completed.")
}

func copyAll(ctx context.Context, from, to contract.KVRepository) (int, error) {
	keys, err := from.Keys(ctx, "")
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, key := range keys {
		raw, found, err := from.Get(ctx, key)
		if err != nil {
			return copied, err
		}
		if !found {
			continue
		}
		if err := to.Set(ctx, key, raw); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}
