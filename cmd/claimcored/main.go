package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/claimledger/internal/erpfeed"
	"github.com/MarkoPoloResearchLab/claimledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/claimledger/internal/notify"
	"github.com/MarkoPoloResearchLab/claimledger/internal/ratings"
	"github.com/MarkoPoloResearchLab/claimledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/claimledger/internal/synclock"
	"github.com/MarkoPoloResearchLab/claimledger/internal/turnover"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagTokenSigningKey    = "token-signing-key"
	flagTokenIssuer        = "token-issuer"
	flagFeedURL            = "feed-url"
	flagFeedUsername       = "feed-username"
	flagFeedPassword       = "feed-password"
	flagSyncInterval       = "sync-interval"
	flagRedisAddr          = "redis-addr"
	flagKafkaBrokers       = "kafka-brokers"
	flagPushInterval       = "push-interval"
	flagLaunchDate         = "launch-date"
	flagPoolRateCents      = "pool-rate-cents-per-liter"
	flagNewBuyerBonusCents = "new-buyer-bonus-cents"
	flagAvgLevels          = "avg-levels"
	flagLevelInterval      = "level-interval"
	flagAllowRedispute     = "allow-redispute"

	defaultDatabaseURL   = "sqlite:///tmp/claimledger.db"
	defaultListenAddr    = ":9090"
	defaultSyncInterval  = 15 * time.Minute
	defaultPushInterval  = 5 * time.Second
	defaultLevelInterval = time.Hour
	defaultLaunchDate    = "2026-02-17"
	defaultPoolRate      = int64(150)
	defaultNewBuyerBonus = int64(5000)

	envPrefix = "CLAIMLEDGER"
)

type runtimeConfig struct {
	DatabaseURL        string
	ListenAddr         string
	AllowedOrigins     []string
	TokenSigningKey    string
	TokenIssuer        string
	FeedURL            string
	FeedUsername       string
	FeedPassword       string
	SyncInterval       time.Duration
	RedisAddr          string
	KafkaBrokers       []string
	PushInterval       time.Duration
	LaunchDate         string
	PoolRateCents      int64
	NewBuyerBonusCents int64
	AvgLevels          string
	LevelInterval      time.Duration
	AllowRedispute     bool
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "claimcored: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "claimcored",
		Short:         "Claim ledger backend for the sales bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagTokenSigningKey, "", "bearer token signing key (required)")
	cmd.Flags().String(flagTokenIssuer, "", "expected bearer token issuer")
	cmd.Flags().String(flagFeedURL, "", "ERP turnover feed URL; sync disabled when empty")
	cmd.Flags().String(flagFeedUsername, "", "ERP feed basic-auth username")
	cmd.Flags().String(flagFeedPassword, "", "ERP feed basic-auth password")
	cmd.Flags().Duration(flagSyncInterval, defaultSyncInterval, "ERP feed polling interval")
	cmd.Flags().String(flagRedisAddr, "", "redis address for the sync lock; in-process lock when empty")
	cmd.Flags().String(flagKafkaBrokers, "", "comma-separated kafka brokers for pushes; log-only when empty")
	cmd.Flags().Duration(flagPushInterval, defaultPushInterval, "outbox drain interval")
	cmd.Flags().String(flagLaunchDate, defaultLaunchDate, "earliest claimable turnover date (YYYY-MM-DD)")
	cmd.Flags().Int64(flagPoolRateCents, defaultPoolRate, "pool bonus rate in cents per liter")
	cmd.Flags().Int64(flagNewBuyerBonusCents, defaultNewBuyerBonus, "fixed new-buyer bonus in cents")
	cmd.Flags().String(flagAvgLevels, "", "monthly level tiers as code:threshold_ml:reward_cents pairs; level pass disabled when empty")
	cmd.Flags().Duration(flagLevelInterval, defaultLevelInterval, "monthly level pass interval")
	cmd.Flags().Bool(flagAllowRedispute, false, "allow a new dispute after a rejected one")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flagNames := []string{
		flagDatabaseURL, flagListenAddr, flagAllowedOrigins,
		flagTokenSigningKey, flagTokenIssuer,
		flagFeedURL, flagFeedUsername, flagFeedPassword, flagSyncInterval,
		flagRedisAddr, flagKafkaBrokers, flagPushInterval,
		flagLaunchDate, flagPoolRateCents, flagNewBuyerBonusCents,
		flagAvgLevels, flagLevelInterval, flagAllowRedispute,
	}
	for _, flagName := range flagNames {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.TokenSigningKey = v.GetString(flagTokenSigningKey)
	cfg.TokenIssuer = strings.TrimSpace(v.GetString(flagTokenIssuer))
	cfg.FeedURL = strings.TrimSpace(v.GetString(flagFeedURL))
	cfg.FeedUsername = v.GetString(flagFeedUsername)
	cfg.FeedPassword = v.GetString(flagFeedPassword)
	cfg.SyncInterval = v.GetDuration(flagSyncInterval)
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.KafkaBrokers = splitList(v.GetString(flagKafkaBrokers))
	cfg.PushInterval = v.GetDuration(flagPushInterval)
	cfg.LaunchDate = strings.TrimSpace(v.GetString(flagLaunchDate))
	cfg.PoolRateCents = v.GetInt64(flagPoolRateCents)
	cfg.NewBuyerBonusCents = v.GetInt64(flagNewBuyerBonusCents)
	cfg.AvgLevels = strings.TrimSpace(v.GetString(flagAvgLevels))
	cfg.LevelInterval = v.GetDuration(flagLevelInterval)
	cfg.AllowRedispute = v.GetBool(flagAllowRedispute)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	launchDate, err := claims.NewPeriodDate(cfg.LaunchDate)
	if err != nil {
		return fmt.Errorf("launch date: %w", err)
	}
	clock := func() int64 { return time.Now().UTC().Unix() }

	financeStore := gormstore.NewFinanceStore(gormDB)
	accruer, err := finance.NewAccruer(financeStore, finance.BonusConfig{
		LaunchDate:            launchDate,
		PoolRateCentsPerLiter: cfg.PoolRateCents,
		NewBuyerBonusCents:    cfg.NewBuyerBonusCents,
	}, clock)
	if err != nil {
		return fmt.Errorf("accruer init: %w", err)
	}

	claimService, err := claims.NewService(
		gormstore.NewClaimStore(gormDB),
		claims.Policy{LaunchDate: launchDate, AllowRedispute: cfg.AllowRedispute},
		clock,
		claims.WithAccruer(accruer),
		claims.WithOperationLogger(&zapOperationLogger{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("claim service init: %w", err)
	}
	financeService, err := finance.NewService(financeStore, clock)
	if err != nil {
		return fmt.Errorf("finance service init: %w", err)
	}
	goalService, err := finance.NewGoals(financeStore, clock)
	if err != nil {
		return fmt.Errorf("goal service init: %w", err)
	}
	if cfg.AvgLevels != "" {
		levels, err := parseAvgLevels(cfg.AvgLevels)
		if err != nil {
			return fmt.Errorf("avg levels: %w", err)
		}
		if err := goalService.SaveAvgLevels(ctx, levels); err != nil {
			return fmt.Errorf("avg levels save: %w", err)
		}
		go runLevelAwards(ctx, goalService, cfg.LevelInterval, clock, logger)
	} else {
		logger.Warn("avg levels not set, monthly level pass disabled")
	}
	ratingService, err := ratings.NewService(gormstore.NewRatingStore(gormDB))
	if err != nil {
		return fmt.Errorf("rating service init: %w", err)
	}

	outbox := gormstore.NewOutboxStore(gormDB)
	producer, closeProducer, err := buildProducer(cfg, logger)
	if err != nil {
		return fmt.Errorf("producer init: %w", err)
	}
	defer closeProducer()
	sender, err := notify.NewSender(outbox, producer, clock, logger)
	if err != nil {
		return fmt.Errorf("sender init: %w", err)
	}
	go sender.Run(ctx, cfg.PushInterval)

	var syncControl httpapi.SyncControl
	if cfg.FeedURL != "" {
		syncer, err := buildSyncer(cfg, gormDB, clock, logger)
		if err != nil {
			return fmt.Errorf("syncer init: %w", err)
		}
		syncControl = syncer
		go syncer.Run(ctx, cfg.SyncInterval)
	} else {
		logger.Warn("erp feed url not set, turnover sync disabled")
	}

	server, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  cfg.AllowedOrigins,
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}, claimService, financeService, goalService, ratingService, syncControl, outbox, clock, logger)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	return server.Run(ctx)
}

// parseAvgLevels reads a comma-separated list of
// code:threshold_ml:reward_cents tier definitions.
func parseAvgLevels(raw string) ([]finance.AvgLevel, error) {
	levels := make([]finance.AvgLevel, 0)
	for _, spec := range splitList(raw) {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed tier %q, want code:threshold_ml:reward_cents", spec)
		}
		code, err := finance.NewLevelCode(parts[0])
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", spec, err)
		}
		threshold, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || threshold <= 0 {
			return nil, fmt.Errorf("tier %q: threshold must be a positive integer", spec)
		}
		rewardRaw, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tier %q: reward must be an integer", spec)
		}
		reward, err := finance.NewPositiveAmountCents(rewardRaw)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", spec, err)
		}
		levels = append(levels, finance.AvgLevel{Code: code, ThresholdML: threshold, RewardCents: reward})
	}
	return levels, nil
}

// runLevelAwards periodically pays monthly level rewards for the current
// month. Awards are keyed per (level, user, month), so repeated passes
// within a month pay nothing twice.
func runLevelAwards(ctx context.Context, goals *finance.Goals, interval time.Duration, clock func() int64, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		period := finance.PeriodKeyFromTime(time.Unix(clock(), 0))
		paid, err := goals.AwardLevelsForMonth(ctx, period)
		switch {
		case err != nil:
			logger.Warn("level pass failed", zap.String("period", period.String()), zap.Error(err))
		case paid > 0:
			logger.Info("level pass paid rewards", zap.String("period", period.String()), zap.Int("entries", paid))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func buildSyncer(cfg *runtimeConfig, gormDB *gorm.DB, clock func() int64, logger *zap.Logger) (*turnover.Syncer, error) {
	feed, err := erpfeed.NewClient(erpfeed.Config{
		BaseURL:  cfg.FeedURL,
		Username: cfg.FeedUsername,
		Password: cfg.FeedPassword,
	}, logger)
	if err != nil {
		return nil, err
	}

	var locker turnover.Locker = synclock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		locker = synclock.NewRedisLocker(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	return turnover.NewSyncer(gormstore.NewTurnoverStore(gormDB), feed, locker, cfg.SyncInterval, clock, logger)
}

func buildProducer(cfg *runtimeConfig, logger *zap.Logger) (notify.Producer, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("kafka brokers not set, pushes are log-only")
		return notify.NewLogProducer(logger), func() {}, nil
	}
	producer, err := notify.NewKafkaProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, nil, err
	}
	return producer, func() { _ = producer.Close() }, nil
}

// zapOperationLogger bridges domain operation callbacks onto zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (operationLogger *zapOperationLogger) LogOperation(ctx context.Context, entry claims.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
	}
	if entry.TurnoverID.String() != "" {
		fields = append(fields, zap.String("turnover_id", entry.TurnoverID.String()))
	}
	if entry.ClaimID.String() != "" {
		fields = append(fields, zap.String("claim_id", entry.ClaimID.String()))
	}
	if entry.DisputeID.String() != "" {
		fields = append(fields, zap.String("dispute_id", entry.DisputeID.String()))
	}
	if entry.Decision != "" {
		fields = append(fields, zap.String("decision", string(entry.Decision)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("operation failed", fields...)
		return
	}
	operationLogger.logger.Info("operation complete", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormCfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormCfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "claimledger.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
