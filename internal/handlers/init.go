package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/EchoLayerS/EchoLayer/internal/graph"
	"github.com/EchoLayerS/EchoLayer/internal/rewards"
	"github.com/EchoLayerS/EchoLayer/internal/score"
	"github.com/EchoLayerS/EchoLayer/pkg/cache"
	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/database"
	"github.com/EchoLayerS/EchoLayer/pkg/kafka"
	"github.com/EchoLayerS/EchoLayer/pkg/logging"
)

var (
	db        *sql.DB
	ch        database.ClickHouseNativeConn
	logger    logging.Logger
	metrics   *SounderMetrics
	engine    *score.Engine
	history   *score.History
	propGraph *graph.Graph
	allocator *rewards.Allocator
	producer  *kafka.Producer
	influence *InfluenceCache
	alerts    ResonancePublisher

	scoreCache *cache.Cache

	scoringCfg config.ScoringConfig
	graphCfg   config.GraphConfig
	rewardCfg  config.RewardConfig
)

// SounderMetrics holds all Prometheus metrics for Sounder
type SounderMetrics struct {
	ScoresComputed     *prometheus.CounterVec
	ScoreDuration      *prometheus.HistogramVec
	CompositeScores    *prometheus.HistogramVec
	GraphEvents        *prometheus.CounterVec
	GraphSize          *prometheus.GaugeVec
	ResonanceLoops     *prometheus.CounterVec
	RewardTransactions *prometheus.CounterVec
	PoolRemaining      *prometheus.GaugeVec
	DeferredDepth      *prometheus.GaugeVec
	DBQueries          *prometheus.CounterVec
	DBDuration         *prometheus.HistogramVec
	DBConnections      *prometheus.GaugeVec
}

// Deps bundles everything the handler package needs at startup.
type Deps struct {
	DB         *sql.DB
	ClickHouse database.ClickHouseNativeConn
	Logger     logging.Logger
	Metrics    *SounderMetrics
	Engine     *score.Engine
	History    *score.History
	Graph      *graph.Graph
	Allocator  *rewards.Allocator
	Producer   *kafka.Producer
	Influence  *InfluenceCache
	Alerts     ResonancePublisher
	ScoreCache *cache.Cache

	ScoringConfig config.ScoringConfig
	GraphConfig   config.GraphConfig
	RewardConfig  config.RewardConfig
}

// Init initializes the handlers with their collaborators.
func Init(deps Deps) {
	db = deps.DB
	ch = deps.ClickHouse
	logger = deps.Logger
	metrics = deps.Metrics
	engine = deps.Engine
	history = deps.History
	propGraph = deps.Graph
	allocator = deps.Allocator
	producer = deps.Producer
	influence = deps.Influence
	alerts = deps.Alerts
	scoreCache = deps.ScoreCache
	scoringCfg = deps.ScoringConfig
	graphCfg = deps.GraphConfig
	rewardCfg = deps.RewardConfig
}
