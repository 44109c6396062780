package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/parser"
	"github.com/sbilibin2017/gw-settlement-validator/internal/repositories"
	"github.com/sbilibin2017/gw-settlement-validator/internal/services"
	"github.com/sbilibin2017/gw-settlement-validator/internal/writers"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// config holds everything read from the environment.
type config struct {
	logLevel string

	usersPath        string
	transactionsPath string
	binsPath         string
	balancesPath     string
	eventsPath       string

	pgEnabled      bool
	pgHost         string
	pgPort         int
	pgUser         string
	pgPassword     string
	pgDB           string
	pgMaxOpenConns int
	pgMaxIdleConns int

	redisEnabled    bool
	redisHost       string
	redisPort       int
	redisDB         int
	redisPassword   string
	redisBalanceTTL time.Duration

	kafkaEnabled bool
	kafkaBrokers []string
	kafkaTopic   string
}

func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("settlement stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Version: %s, Commit: %s, Build: %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// parseConfig loads environment variables from a file and returns
// the file locations, logging and optional Postgres, Redis and Kafka settings.
// A missing file is not an error; defaults and the process environment apply.
func parseConfig(path string) (cfg config, err error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}
	getBool := func(key string) (bool, error) {
		v, err := strconv.ParseBool(getEnv(key, "false"))
		if err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
		return v, nil
	}
	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return v, nil
	}

	// Application config
	cfg.logLevel = getEnv("APP_LOG_LEVEL", "info")

	// Files
	cfg.usersPath = getEnv("USERS_CSV_PATH", "input/users.csv")
	cfg.transactionsPath = getEnv("TRANSACTIONS_CSV_PATH", "input/transactions.csv")
	cfg.binsPath = getEnv("BINS_CSV_PATH", "input/bins.csv")
	cfg.balancesPath = getEnv("BALANCES_CSV_PATH", "output/balances.csv")
	cfg.eventsPath = getEnv("EVENTS_CSV_PATH", "output/events.csv")

	// PostgreSQL config
	if cfg.pgEnabled, err = getBool("POSTGRES_ENABLED"); err != nil {
		return
	}
	cfg.pgHost = getEnv("POSTGRES_HOST", "localhost")
	cfg.pgUser = getEnv("POSTGRES_USER", "user")
	cfg.pgPassword = getEnv("POSTGRES_PASSWORD", "password")
	cfg.pgDB = getEnv("POSTGRES_DB", "database")
	if cfg.pgPort, err = getInt("POSTGRES_PORT", "5432"); err != nil {
		return
	}
	if cfg.pgMaxOpenConns, err = getInt("POSTGRES_MAX_OPEN_CONNS", "16"); err != nil {
		return
	}
	if cfg.pgMaxIdleConns, err = getInt("POSTGRES_MAX_IDLE_CONNS", "8"); err != nil {
		return
	}

	// Redis config
	if cfg.redisEnabled, err = getBool("REDIS_ENABLED"); err != nil {
		return
	}
	cfg.redisHost = getEnv("REDIS_HOST", "localhost")
	if cfg.redisPort, err = getInt("REDIS_PORT", "6379"); err != nil {
		return
	}
	if cfg.redisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return
	}
	cfg.redisPassword = getEnv("REDIS_PASSWORD", "")
	ttl, err := getInt("REDIS_BALANCE_TTL_SECOND", "3600")
	if err != nil {
		return
	}
	cfg.redisBalanceTTL = time.Duration(ttl) * time.Second

	// Kafka config
	if cfg.kafkaEnabled, err = getBool("KAFKA_ENABLED"); err != nil {
		return
	}
	for _, b := range strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.kafkaBrokers = append(cfg.kafkaBrokers, b)
		}
	}
	cfg.kafkaTopic = getEnv("KAFKA_TOPIC", "settlement.events")

	return
}

// run initializes the logger and the enabled sinks, loads the input files,
// settles the batch and writes the balance and event files.
func run(ctx context.Context, cfg config) error {
	// Initialize logger
	if err := logger.Initialize(cfg.logLevel); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.logLevel)

	var (
		resultWriter services.ResultWriter
		balanceCache services.BalanceCache
		kafkaWriter  services.KafkaWriter
	)

	// Connect to PostgreSQL
	if cfg.pgEnabled {
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.pgUser, cfg.pgPassword, cfg.pgHost, cfg.pgPort, cfg.pgDB)
		logger.Log.Infow("Connecting to PostgreSQL", "host", cfg.pgHost, "port", cfg.pgPort, "db", cfg.pgDB)

		db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.pgMaxOpenConns)
		db.SetMaxIdleConns(cfg.pgMaxIdleConns)

		repo := repositories.NewResultWriteRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		resultWriter = repo
	}

	// Connect to Redis
	if cfg.redisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.redisHost, cfg.redisPort),
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		balanceCache = repositories.NewBalanceCacheRepository(rdb, cfg.redisBalanceTTL)
	}

	// Kafka producer
	if cfg.kafkaEnabled {
		w := &kafka.Writer{
			Addr:     kafka.TCP(cfg.kafkaBrokers...),
			Topic:    cfg.kafkaTopic,
			Balancer: &kafka.LeastBytes{},
		}
		defer func() {
			if err := w.Close(); err != nil {
				logger.Log.Errorw("Kafka writer close error", "error", err)
			}
		}()
		kafkaWriter = w
	}

	// Load input
	users, err := load("users", cfg.usersPath, parser.ReadUsers)
	if err != nil {
		return err
	}
	transactions, err := load("transactions", cfg.transactionsPath, parser.ReadTransactions)
	if err != nil {
		return err
	}
	bins, err := load("bins", cfg.binsPath, parser.ReadBinMappings)
	if err != nil {
		return err
	}

	svc := services.NewSettlementService(resultWriter, balanceCache, kafkaWriter)
	runID, result, runErr := svc.Run(ctx, users, transactions, bins)

	// The files are written even when persisting the run failed.
	if err := writers.WriteBalances(result.Balances, cfg.balancesPath); err != nil {
		return err
	}
	if err := writers.WriteEvents(result.Events, cfg.eventsPath); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	logger.Log.Infow("Batch finished",
		"run_id", runID,
		"approved", result.Summary.Approved,
		"declined", result.Summary.Declined,
		"balances_path", cfg.balancesPath,
		"events_path", cfg.eventsPath,
	)
	return nil
}

// load reads one input file and logs how long it took.
func load[T any](name, path string, read func(string) ([]T, error)) ([]T, error) {
	start := time.Now()
	rows, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", name, path, err)
	}
	logger.Log.Infow("Input loaded", "name", name, "path", path, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}
