package main

import (
	"context"
	"strings"
	"time"

	"github.com/EchoLayerS/EchoLayer/internal/graph"
	"github.com/EchoLayerS/EchoLayer/internal/handlers"
	"github.com/EchoLayerS/EchoLayer/internal/rewards"
	"github.com/EchoLayerS/EchoLayer/internal/score"
	"github.com/EchoLayerS/EchoLayer/pkg/cache"
	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/database"
	"github.com/EchoLayerS/EchoLayer/pkg/kafka"
	"github.com/EchoLayerS/EchoLayer/pkg/logging"
	"github.com/EchoLayerS/EchoLayer/pkg/monitoring"
	"github.com/EchoLayerS/EchoLayer/pkg/redis"
	"github.com/EchoLayerS/EchoLayer/pkg/server"
	"github.com/EchoLayerS/EchoLayer/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("sounder")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Sounder (Attention Scoring & Rewards)")

	databaseURL := config.RequireEnv("DATABASE_URL")
	clickhouseHost := config.RequireEnv("CLICKHOUSE_HOST")
	clickhouseDB := config.RequireEnv("CLICKHOUSE_DB")
	clickhouseUser := config.RequireEnv("CLICKHOUSE_USER")
	clickhousePassword := config.RequireEnv("CLICKHOUSE_PASSWORD")
	brokersEnv := config.RequireEnv("KAFKA_BROKERS")
	clusterID := config.RequireEnv("KAFKA_CLUSTER_ID")
	redisAddr := config.GetEnv("REDIS_ADDR", "redis:6379")

	// Tunables fail fast: bad weights or splits never reach the pipeline.
	scoringCfg, err := config.LoadScoringConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid scoring configuration")
	}
	graphCfg, err := config.LoadGraphConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid graph configuration")
	}
	rewardCfg, err := config.LoadRewardConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid reward configuration")
	}

	// Connect to PostgreSQL (system of record)
	dbConfig := database.DefaultConfig()
	dbConfig.URL = databaseURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Connect to ClickHouse (append-only score and edge streams)
	chConfig := database.DefaultClickHouseConfig()
	chConfig.Addr = []string{clickhouseHost}
	chConfig.Database = clickhouseDB
	chConfig.Username = clickhouseUser
	chConfig.Password = clickhousePassword
	clickhouse := database.MustConnectClickHouseNative(chConfig, logger)
	defer clickhouse.Close()

	// Connect to Redis (influence seeds, resonance pub/sub)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := redis.NewUniversalClient(connectCtx, redis.Config{
		Mode:     redis.ModeSingle,
		Addrs:    []string{redisAddr},
		Password: config.GetEnv("REDIS_PASSWORD", ""),
	})
	connectCancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Core pipeline components
	scoreEngine, err := score.NewEngine(scoringCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create score engine")
	}
	scoreHistory := score.NewHistory()
	propagationGraph := graph.New(graphCfg)

	period := time.Now().UTC().Format("2006-01-02")
	allocator, err := rewards.NewAllocator(rewardCfg, period)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create reward allocator")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("sounder", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("sounder", version.Version, version.GitCommit)

	metrics := &handlers.SounderMetrics{}
	metrics.ScoresComputed, metrics.ScoreDuration, metrics.CompositeScores = metricsCollector.CreateScoringMetrics()
	metrics.GraphEvents, metrics.GraphSize, metrics.ResonanceLoops = metricsCollector.CreateGraphMetrics()
	metrics.RewardTransactions, metrics.PoolRemaining, metrics.DeferredDepth = metricsCollector.CreatePoolMetrics()
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Setup Kafka
	brokers := strings.Split(brokersEnv, ",")
	groupID := config.GetEnv("KAFKA_GROUP_ID", "sounder")
	clientID := config.GetEnv("KAFKA_CLIENT_ID", "sounder")
	topics := strings.Split(config.GetEnv("ATTENTION_KAFKA_TOPIC", "attention_events"), ",")
	ledgerTopic := config.GetEnv("LEDGER_KAFKA_TOPIC", "reward_transactions")

	consumer, err := kafka.NewConsumer(brokers, groupID, clusterID, clientID, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	producer, err := kafka.NewProducer(brokers, clusterID, clientID, ledgerTopic, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	// Initialize handlers
	handlers.Init(handlers.Deps{
		DB:         db,
		ClickHouse: clickhouse,
		Logger:     logger,
		Metrics:    metrics,
		Engine:     scoreEngine,
		History:    scoreHistory,
		Graph:      propagationGraph,
		Allocator:  allocator,
		Producer:   producer,
		Influence:  handlers.NewInfluenceCache(redisClient),
		Alerts:     handlers.NewResonancePublisher(redisClient),
		ScoreCache: cache.New(cache.Options{
			TTL:                  30 * time.Second,
			StaleWhileRevalidate: 30 * time.Second,
			MaxEntries:           10000,
		}, cache.MetricsHooks{}),
		ScoringConfig: scoringCfg,
		GraphConfig:   graphCfg,
		RewardConfig:  rewardCfg,
	})

	// Subscribe to topics with the validated event handler
	eventHandler := kafka.NewAttentionEventHandler(handlers.ProcessAttentionEvent, logger).
		WithDLQ(producer, config.GetEnv("DLQ_KAFKA_TOPIC", "sounder_dlq"), clientID)
	for _, topic := range topics {
		consumer.AddHandler(topic, eventHandler.HandleMessage)
	}

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("clickhouse", monitoring.ClickHouseNativeHealthCheck(clickhouse))
	healthChecker.AddCheck("kafka_consumer", monitoring.KafkaHealthCheck("consumer", consumer.GetClient()))
	healthChecker.AddCheck("kafka_producer", monitoring.KafkaHealthCheck("producer", producer.GetClient()))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":    databaseURL,
		"CLICKHOUSE_HOST": clickhouseHost,
		"KAFKA_BROKERS":   brokersEnv,
		"KAFKA_GROUP_ID":  groupID,
	}))

	// Start consuming
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Error("Kafka consumer error")
		}
	}()

	// Background jobs: pool rollover and loop expiry
	jobManager := handlers.NewJobManager(logger, config.GetEnvBool("ENABLE_POOL_RESET_JOB", true))
	jobManager.Start(ctx)

	// Query surface
	router := server.SetupServiceRouter(logger, "sounder", healthChecker, metricsCollector)
	handlers.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("sounder", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server error")
	}

	// Cleanup
	cancel()
	jobManager.Stop()
	consumer.Close()

	logger.Info("Sounder stopped")
}
