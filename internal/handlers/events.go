package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EchoLayerS/EchoLayer/internal/graph"
	"github.com/EchoLayerS/EchoLayer/internal/score"
	"github.com/EchoLayerS/EchoLayer/pkg/logging"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
	"github.com/EchoLayerS/EchoLayer/pkg/validation"
)

// ProcessAttentionEvent is the Kafka entry point: one validated attention
// event in, scoring/graph/reward side effects out. Rejections (unscorable
// content, graph inconsistencies) are logged and swallowed so the partition
// keeps moving; infrastructure failures propagate for retry.
func ProcessAttentionEvent(ctx context.Context, event validation.AttentionEvent) error {
	switch event.EventType {
	case validation.EventEngagementSnapshot:
		return handleEngagementSnapshot(ctx, event)
	case validation.EventPropagation:
		return handlePropagation(ctx, event)
	case validation.EventLedgerStatus:
		return handleLedgerStatus(ctx, event)
	default:
		logger.WithField("event_type", event.EventType).Warn("Unhandled attention event type")
		return nil
	}
}

func handleEngagementSnapshot(ctx context.Context, event validation.AttentionEvent) error {
	start := time.Now()
	payload := event.EngagementSnapshot
	now := event.Timestamp

	item := models.ContentItem{
		ID:        payload.ContentID,
		CreatorID: payload.CreatorID,
		Platform:  payload.Platform,
		CreatedAt: payload.CreatedAt,
		UpdatedAt: now,
		Snapshot: models.EngagementSnapshot{
			Views:                payload.Views,
			OrganicShares:        payload.OrganicShares,
			TotalShares:          payload.TotalShares,
			DwellTimeSeconds:     payload.DwellTimeSeconds,
			EngagementCounts:     payload.EngagementCounts,
			PlatformReach:        payload.PlatformReach,
			Sentiment:            payload.Sentiment,
			Credibility:          payload.Credibility,
			Relevance:            payload.Relevance,
			Originality:          payload.Originality,
			LastInteractionAt:    payload.LastInteractionAt,
			InteractionFrequency: payload.InteractionFrequency,
		},
	}

	previous, hadPrevious := history.Latest(item.ID)

	attentionScore, err := engine.Score(item, now)
	if err != nil {
		var insufficient *score.InsufficientDataError
		if errors.As(err, &insufficient) {
			metrics.ScoresComputed.WithLabelValues("insufficient_data").Inc()
			logger.WithFields(logging.Fields{
				"content_id": item.ID,
				"field":      insufficient.Field,
			}).Warn("Content not yet scorable")
			return nil
		}
		return fmt.Errorf("score content %s: %w", item.ID, err)
	}

	attentionScore = history.Append(attentionScore)
	propGraph.SetContentScore(item.ID, attentionScore.Composite)
	scoreCache.Delete(latestScoreKey(item.ID))

	metrics.ScoresComputed.WithLabelValues("ok").Inc()
	metrics.CompositeScores.WithLabelValues(item.Platform).Observe(attentionScore.Composite)
	metrics.ScoreDuration.WithLabelValues("composite").Observe(time.Since(start).Seconds())

	if err := upsertContentItem(ctx, item); err != nil {
		return fmt.Errorf("persist content %s: %w", item.ID, err)
	}
	if err := insertScoreRow(ctx, attentionScore, item.Platform); err != nil {
		return fmt.Errorf("persist score for %s: %w", item.ID, err)
	}

	amount := allocator.CreationReward(attentionScore.Composite, attentionScore.QF, payload.EarlyEngagement)
	if err := award(ctx, payload.CreatorID, item.ID, models.RewardCreation, amount, nil, now); err != nil {
		return err
	}

	// Rescoring that lifts the composite qualifies for a quality bonus.
	if hadPrevious && attentionScore.Composite > previous.Composite {
		improvement := attentionScore.Composite - previous.Composite
		viralCoefficient := 0.0
		if payload.Views > 0 {
			viralCoefficient = float64(payload.TotalShares) / float64(payload.Views) * 10
		}
		engagementRate := math.Min(1, item.Snapshot.EngagementSum())
		retentionRate := math.Min(1, payload.DwellTimeSeconds/60)
		bonus := allocator.QualityBonus(improvement, viralCoefficient, engagementRate, retentionRate)
		if bonus.IsPositive() {
			if err := award(ctx, payload.CreatorID, item.ID, models.RewardQuality, bonus, nil, now); err != nil {
				return err
			}
		}
	}

	updatePoolGauges()
	return nil
}

func handlePropagation(ctx context.Context, event validation.AttentionEvent) error {
	payload := event.Propagation

	seedNodeFromCache(ctx, payload.SourceUserID, payload.SourcePlatform)
	if payload.TargetUserID != "" {
		seedNodeFromCache(ctx, payload.TargetUserID, payload.TargetPlatform)
	}

	edge, err := propGraph.RecordEvent(graph.Event{
		ContentID:       payload.ContentID,
		SourceUserID:    payload.SourceUserID,
		TargetUserID:    payload.TargetUserID,
		SourcePlatform:  payload.SourcePlatform,
		TargetPlatform:  payload.TargetPlatform,
		InteractionType: payload.InteractionType,
		Strength:        payload.InteractionStrength,
		Timestamp:       payload.Timestamp,
	})
	if err != nil {
		var inconsistency *graph.InconsistencyError
		if errors.As(err, &inconsistency) {
			metrics.GraphEvents.WithLabelValues(payload.InteractionType, "rejected").Inc()
			logger.WithFields(logging.Fields{
				"content_id":     payload.ContentID,
				"source_user_id": payload.SourceUserID,
			}).Error("Propagation event references unscored content")
			return nil
		}
		metrics.GraphEvents.WithLabelValues(payload.InteractionType, "invalid").Inc()
		logger.WithError(err).WithField("content_id", payload.ContentID).Error("Rejected propagation event")
		return nil
	}
	metrics.GraphEvents.WithLabelValues(payload.InteractionType, "ok").Inc()

	if err := insertEdgeRow(ctx, edge); err != nil {
		return fmt.Errorf("persist edge %s: %w", edge.ID, err)
	}

	loopStrength := propGraph.LoopStrength(payload.ContentID)
	if propGraph.Resonant(payload.ContentID) {
		metrics.ResonanceLoops.WithLabelValues(payload.SourcePlatform).Inc()
		publishResonanceAlert(ctx, payload.ContentID, payload.SourcePlatform, loopStrength)
	}

	originalScore, ok := propGraph.ContentScore(payload.ContentID)
	if !ok {
		return nil
	}

	propagatorInfluence := defaultInfluence
	if node, found := propGraph.Node(models.NodeID(payload.SourceUserID, payload.SourcePlatform)); found {
		propagatorInfluence = node.InfluenceWeight
	}

	propagationAmount := allocator.PropagationReward(originalScore, edge.Weight, propagatorInfluence, loopStrength)
	edgeID := edge.ID
	if err := award(ctx, payload.SourceUserID, payload.ContentID, models.RewardPropagation, propagationAmount, &edgeID, payload.Timestamp); err != nil {
		return err
	}

	// The original creator takes a cut when someone else propagates.
	creatorID, err := contentCreator(ctx, payload.ContentID)
	if err == nil && creatorID != "" && creatorID != payload.SourceUserID {
		cut := allocator.CreatorCut(propagationAmount)
		if cut.IsPositive() {
			if err := award(ctx, creatorID, payload.ContentID, models.RewardCreatorCut, cut, &edgeID, payload.Timestamp); err != nil {
				return err
			}
		}
	}

	if payload.DiscoveredBy != "" {
		discovererInfluence := influence.Get(ctx, payload.DiscoveredBy, discovererPlatform(payload))
		bonus := allocator.DiscoveryBonus(originalScore, payload.DiscoveryTiming, discovererInfluence)
		if bonus.IsPositive() {
			if err := award(ctx, payload.DiscoveredBy, payload.ContentID, models.RewardDiscovery, bonus, &edgeID, payload.Timestamp); err != nil {
				return err
			}
		}
	}

	updatePoolGauges()
	return nil
}

func handleLedgerStatus(ctx context.Context, event validation.AttentionEvent) error {
	payload := event.LedgerStatus
	if payload.Settled {
		return nil
	}

	tx, err := allocator.MarkFailed(payload.TransactionID, event.Timestamp)
	if err != nil {
		logger.WithFields(logging.Fields{
			"transaction_id": payload.TransactionID,
			"reason":         payload.Reason,
		}).Warn("Ledger rejection for unknown transaction")
		return nil
	}

	if err := updateTransactionStatus(ctx, tx.ID, models.StatusFailed, event.Timestamp); err != nil {
		return fmt.Errorf("persist failed status for %s: %w", tx.ID, err)
	}

	metrics.RewardTransactions.WithLabelValues(string(tx.Reason), string(models.StatusFailed)).Inc()
	// Terminal: surfaced to operators, never retried from here.
	logger.WithFields(logging.Fields{
		"transaction_id": tx.ID,
		"recipient":      tx.Recipient,
		"amount":         tx.Amount.String(),
		"reason":         payload.Reason,
	}).Error("Ledger rejected reward transaction")
	return nil
}

// award creates the transaction, persists it, and publishes it to the ledger
// when it comes out allocated. Amounts that round to nothing are skipped.
func award(ctx context.Context, recipient, contentID string, reason models.RewardReason, amount decimal.Decimal, edgeID *string, now time.Time) error {
	if !amount.IsPositive() {
		return nil
	}

	tx, err := allocator.Award(recipient, contentID, reason, amount, edgeID, now)
	if err != nil {
		return fmt.Errorf("award %s reward to %s: %w", reason, recipient, err)
	}
	metrics.RewardTransactions.WithLabelValues(string(tx.Reason), string(tx.Status)).Inc()

	if err := insertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("persist transaction %s: %w", tx.ID, err)
	}

	if tx.Status == models.StatusAllocated && producer != nil {
		if err := producer.PublishTransaction(tx); err != nil {
			return fmt.Errorf("publish transaction %s: %w", tx.ID, err)
		}
	}
	return nil
}

func publishResonanceAlert(ctx context.Context, contentID, platform string, loopStrength float64) {
	if alerts == nil {
		return
	}
	alert := ResonanceAlert{
		ContentID:    contentID,
		LoopStrength: loopStrength,
		Platform:     platform,
		DetectedAt:   time.Now(),
	}
	if err := alerts.Publish(ctx, ResonanceChannel, alert); err != nil {
		logger.WithError(err).WithField("content_id", contentID).Warn("Failed to publish resonance alert")
	}
}

// The discoverer may live on a different platform than the propagator; events
// that omit the field fall back to the source platform.
func discovererPlatform(p *validation.PropagationEventPayload) string {
	if p.DiscovererPlatform != "" {
		return p.DiscovererPlatform
	}
	return p.SourcePlatform
}

func seedNodeFromCache(ctx context.Context, userID, platform string) {
	if _, ok := propGraph.Node(models.NodeID(userID, platform)); ok {
		return
	}
	propGraph.SeedNode(userID, platform, influence.Get(ctx, userID, platform), 0, 0.5)
}

func updatePoolGauges() {
	status := allocator.PoolStatus()
	for _, pool := range models.SubPools {
		remaining, _ := status.Remaining[pool].Float64()
		metrics.PoolRemaining.WithLabelValues(string(pool)).Set(remaining)
	}
	metrics.DeferredDepth.WithLabelValues("all").Set(float64(status.DeferredDepth))
}
