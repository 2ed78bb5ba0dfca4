package validation

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventType represents the attention event kind flowing through the pipeline
// ingestion collaborator → Kafka → Sounder.
type EventType string

const (
	// Emitted by the ingestion collaborator with a full engagement snapshot
	EventEngagementSnapshot EventType = "engagement-snapshot"
	// Emitted by the platform collaborator for each observed propagation
	EventPropagation EventType = "propagation-event"
	// Emitted by the ledger collaborator when a payout settles or is rejected
	EventLedgerStatus EventType = "ledger-status"
)

// EngagementSnapshotPayload carries a per-content engagement snapshot plus the
// quality signals supplied by the ingestion collaborator.
type EngagementSnapshotPayload struct {
	ContentID            string             `json:"content_id" validate:"required"`
	CreatorID            string             `json:"creator_id" validate:"required"`
	Platform             string             `json:"platform" validate:"required"`
	CreatedAt            time.Time          `json:"created_at" validate:"required"`
	Views                int64              `json:"views" validate:"min=0"`
	OrganicShares        int64              `json:"organic_shares" validate:"min=0"`
	TotalShares          int64              `json:"total_shares" validate:"min=0"`
	DwellTimeSeconds     float64            `json:"dwell_time_seconds" validate:"min=0"`
	EngagementCounts     map[string]float64 `json:"engagement_counts"`
	PlatformReach        int64              `json:"platform_reach" validate:"min=0"`
	Sentiment            float64            `json:"sentiment" validate:"min=-1,max=1"`
	Credibility          float64            `json:"credibility" validate:"min=0,max=1"`
	Relevance            float64            `json:"relevance" validate:"min=0,max=1"`
	Originality          float64            `json:"originality" validate:"min=0,max=1"`
	LastInteractionAt    time.Time          `json:"last_interaction_at"`
	InteractionFrequency float64            `json:"interaction_frequency" validate:"min=0"`
	EarlyEngagement      float64            `json:"early_engagement" validate:"min=0"`
}

// PropagationEventPayload carries one observed propagation between identities.
// TargetUserID is empty for broadcast-style shares.
type PropagationEventPayload struct {
	ContentID           string    `json:"content_id" validate:"required"`
	SourceUserID        string    `json:"source_user_id" validate:"required"`
	TargetUserID        string    `json:"target_user_id,omitempty"`
	SourcePlatform      string    `json:"source_platform" validate:"required"`
	TargetPlatform      string    `json:"target_platform" validate:"required"`
	InteractionType     string    `json:"interaction_type" validate:"required,oneof=share quote reply mention repost"`
	InteractionStrength float64   `json:"interaction_strength" validate:"gt=0,max=1"`
	DiscoveredBy        string    `json:"discovered_by,omitempty"`
	DiscovererPlatform  string    `json:"discoverer_platform,omitempty"`
	DiscoveryTiming     float64   `json:"discovery_timing" validate:"min=0,max=1"`
	Timestamp           time.Time `json:"timestamp" validate:"required"`
}

// LedgerStatusPayload reports the downstream fate of an allocated transaction.
type LedgerStatusPayload struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid"`
	Settled       bool   `json:"settled"`
	Reason        string `json:"reason,omitempty"`
}

// AttentionEvent is the normalized envelope for a single event consumed from
// Kafka, validated before it reaches the scoring pipeline.
type AttentionEvent struct {
	EventID       string    `json:"event_id" validate:"required,uuid4"`
	EventType     EventType `json:"event_type" validate:"required"`
	Timestamp     time.Time `json:"timestamp" validate:"required"`
	Source        string    `json:"source" validate:"required"`
	SchemaVersion string    `json:"schema_version" validate:"required"`

	// Typed event payloads - only one will be populated based on EventType
	EngagementSnapshot *EngagementSnapshotPayload `json:"engagement_snapshot,omitempty"`
	Propagation        *PropagationEventPayload   `json:"propagation,omitempty"`
	LedgerStatus       *LedgerStatusPayload       `json:"ledger_status,omitempty"`
}

// EventValidator performs structural and event-type-specific validation before
// events are accepted into the scoring pipeline. A validation failure is the
// InputValidationError of the error model: the event is rejected for this
// cycle and logged with enough context to replay.
type EventValidator struct {
	validator *validator.Validate
}

// NewEventValidator constructs an EventValidator with standard struct validation.
func NewEventValidator() *EventValidator {
	return &EventValidator{
		validator: validator.New(),
	}
}

// ValidateEvent checks the envelope and applies per-type semantic validation.
func (v *EventValidator) ValidateEvent(event *AttentionEvent) error {
	if err := v.validator.Struct(event); err != nil {
		return fmt.Errorf("event validation failed: %w", err)
	}

	switch event.EventType {
	case EventEngagementSnapshot:
		return v.validateEngagementSnapshot(event)
	case EventPropagation:
		return v.validatePropagation(event)
	case EventLedgerStatus:
		return v.validateLedgerStatus(event)
	default:
		return fmt.Errorf("unknown event type: %s", event.EventType)
	}
}

func (v *EventValidator) validateEngagementSnapshot(event *AttentionEvent) error {
	payload := event.EngagementSnapshot
	if payload == nil {
		return fmt.Errorf("engagement-snapshot event missing payload")
	}
	if err := v.validator.Struct(payload); err != nil {
		return fmt.Errorf("engagement snapshot validation failed: %w", err)
	}
	if payload.OrganicShares > payload.TotalShares {
		return fmt.Errorf("content %s: organic shares %d exceed total shares %d",
			payload.ContentID, payload.OrganicShares, payload.TotalShares)
	}
	for name, count := range payload.EngagementCounts {
		if count < 0 {
			return fmt.Errorf("content %s: engagement count %q is negative (%v)",
				payload.ContentID, name, count)
		}
	}
	return nil
}

func (v *EventValidator) validatePropagation(event *AttentionEvent) error {
	payload := event.Propagation
	if payload == nil {
		return fmt.Errorf("propagation event missing payload")
	}
	if err := v.validator.Struct(payload); err != nil {
		return fmt.Errorf("propagation event validation failed: %w", err)
	}
	if payload.TargetUserID != "" && payload.TargetUserID == payload.SourceUserID &&
		payload.SourcePlatform == payload.TargetPlatform {
		return fmt.Errorf("content %s: self-propagation from %s rejected",
			payload.ContentID, payload.SourceUserID)
	}
	return nil
}

func (v *EventValidator) validateLedgerStatus(event *AttentionEvent) error {
	payload := event.LedgerStatus
	if payload == nil {
		return fmt.Errorf("ledger-status event missing payload")
	}
	if err := v.validator.Struct(payload); err != nil {
		return fmt.Errorf("ledger status validation failed: %w", err)
	}
	if !payload.Settled && payload.Reason == "" {
		return fmt.Errorf("transaction %s: rejection without reason", payload.TransactionID)
	}
	return nil
}
