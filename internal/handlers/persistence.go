package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// Postgres holds the mutable system of record (content items, reward
// transactions); ClickHouse receives the append-only analytics streams
// (score versions, propagation edges).

func trackQuery(queryType string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.DBQueries.WithLabelValues(queryType, status).Inc()
	metrics.DBDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

func upsertContentItem(ctx context.Context, item models.ContentItem) error {
	start := time.Now()
	counts, err := json.Marshal(item.Snapshot.EngagementCounts)
	if err != nil {
		return fmt.Errorf("marshal engagement counts: %w", err)
	}

	// Snapshot replacement is wholesale, never field-merged.
	_, err = db.ExecContext(ctx, `
		INSERT INTO content_items (
			id, creator_id, platform, created_at, updated_at,
			views, organic_shares, total_shares, dwell_time_seconds,
			engagement_counts, platform_reach, sentiment, credibility,
			relevance, originality, last_interaction_at, interaction_frequency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			views = EXCLUDED.views,
			organic_shares = EXCLUDED.organic_shares,
			total_shares = EXCLUDED.total_shares,
			dwell_time_seconds = EXCLUDED.dwell_time_seconds,
			engagement_counts = EXCLUDED.engagement_counts,
			platform_reach = EXCLUDED.platform_reach,
			sentiment = EXCLUDED.sentiment,
			credibility = EXCLUDED.credibility,
			relevance = EXCLUDED.relevance,
			originality = EXCLUDED.originality,
			last_interaction_at = EXCLUDED.last_interaction_at,
			interaction_frequency = EXCLUDED.interaction_frequency
	`, item.ID, item.CreatorID, item.Platform, item.CreatedAt, item.UpdatedAt,
		item.Snapshot.Views, item.Snapshot.OrganicShares, item.Snapshot.TotalShares,
		item.Snapshot.DwellTimeSeconds, counts, item.Snapshot.PlatformReach,
		item.Snapshot.Sentiment, item.Snapshot.Credibility, item.Snapshot.Relevance,
		item.Snapshot.Originality, item.Snapshot.LastInteractionAt, item.Snapshot.InteractionFrequency)
	trackQuery("upsert_content", start, err)
	return err
}

func contentCreator(ctx context.Context, contentID string) (string, error) {
	start := time.Now()
	var creatorID string
	err := db.QueryRowContext(ctx, `
		SELECT creator_id FROM content_items WHERE id = $1
	`, contentID).Scan(&creatorID)
	trackQuery("select_creator", start, err)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return creatorID, err
}

func insertTransaction(ctx context.Context, tx models.RewardTransaction) error {
	start := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO reward_transactions (
			id, recipient, amount, reason, content_id, edge_id, status, period, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			period = EXCLUDED.period,
			updated_at = EXCLUDED.updated_at
	`, tx.ID, tx.Recipient, tx.Amount, tx.Reason, tx.ContentID, tx.EdgeID,
		tx.Status, tx.Period, tx.CreatedAt, tx.UpdatedAt)
	trackQuery("insert_transaction", start, err)
	return err
}

func updateTransactionStatus(ctx context.Context, id string, status models.TransactionStatus, now time.Time) error {
	start := time.Now()
	_, err := db.ExecContext(ctx, `
		UPDATE reward_transactions SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, now)
	trackQuery("update_transaction", start, err)
	return err
}

// insertScoreRow appends one score version to the ClickHouse history table.
func insertScoreRow(ctx context.Context, s models.AttentionScore, platform string) error {
	if ch == nil {
		return nil
	}

	batch, err := ch.PrepareBatch(ctx, `
		INSERT INTO attention_scores (
			content_id, platform, odf, awr, tpm, qf, composite, version, calculated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare score batch: %w", err)
	}
	if err := batch.Append(s.ContentID, platform, s.ODF, s.AWR, s.TPM, s.QF,
		s.Composite, s.Version, s.CalculatedAt); err != nil {
		return fmt.Errorf("append score row: %w", err)
	}
	return batch.Send()
}

// insertEdgeRow appends one propagation edge to the ClickHouse edge stream.
func insertEdgeRow(ctx context.Context, edge models.PropagationEdge) error {
	if ch == nil {
		return nil
	}

	targetID := ""
	if edge.TargetID != nil {
		targetID = *edge.TargetID
	}

	batch, err := ch.PrepareBatch(ctx, `
		INSERT INTO propagation_edges (
			id, source_id, target_id, content_id, source_platform, target_platform,
			interaction_type, weight, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare edge batch: %w", err)
	}
	if err := batch.Append(edge.ID, edge.SourceID, targetID, edge.ContentID,
		edge.SourcePlatform, edge.TargetPlatform, edge.InteractionType,
		edge.Weight, edge.Timestamp); err != nil {
		return fmt.Errorf("append edge row: %w", err)
	}
	return batch.Send()
}

// scoreHistoryRows reads the persisted score history for a content item from
// ClickHouse, oldest version first.
func scoreHistoryRows(ctx context.Context, contentID string, limit int) ([]models.AttentionScore, error) {
	if ch == nil {
		return history.Versions(contentID), nil
	}

	rows, err := ch.Query(ctx, `
		SELECT content_id, odf, awr, tpm, qf, composite, version, calculated_at
		FROM attention_scores
		WHERE content_id = ?
		ORDER BY version ASC
		LIMIT ?
	`, contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var out []models.AttentionScore
	for rows.Next() {
		var s models.AttentionScore
		if err := rows.Scan(&s.ContentID, &s.ODF, &s.AWR, &s.TPM, &s.QF,
			&s.Composite, &s.Version, &s.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
