package graph

import (
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EchoLayerS/EchoLayer/pkg/config"
	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

const stripeCount = 64

// Influence and engagement defaults for nodes first seen on a propagation
// event, before the identity collaborator has seeded a profile.
const (
	defaultInfluence      = 0.5
	defaultEngagementRate = 0.5
)

// InconsistencyError marks a propagation event referencing content with no
// recorded attention score. The event is rejected so the ingress collaborator
// can retry after scoring catches up.
type InconsistencyError struct {
	ContentID string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("content %s has no attention score recorded", e.ContentID)
}

// Event is a single propagation occurrence to be recorded in the graph.
// TargetUserID is empty for broadcast-style shares.
type Event struct {
	ContentID       string
	SourceUserID    string
	TargetUserID    string
	SourcePlatform  string
	TargetPlatform  string
	InteractionType string
	Strength        float64
	Timestamp       time.Time
}

type contentState struct {
	composite    float64
	edges        []models.PropagationEdge
	nodeVisits   map[string]int
	totalVisits  int
	weightSum    float64
	loopStrength float64
	firstEventAt time.Time
	lastEventAt  time.Time
}

// Graph is the in-memory propagation arena. Nodes and edges are keyed by
// stable string ids so cycles are ordinary id-to-id references. Mutation is
// serialized per content item via striped locks; unrelated content items
// record events concurrently.
type Graph struct {
	cfg config.GraphConfig

	nodesMu   sync.RWMutex
	nodes     map[string]*models.PropagationNode
	adjacency map[string]map[string]struct{}

	contentMu sync.RWMutex
	content   map[string]*contentState

	stripes [stripeCount]sync.Mutex
}

// New creates an empty propagation graph.
func New(cfg config.GraphConfig) *Graph {
	return &Graph{
		cfg:       cfg,
		nodes:     make(map[string]*models.PropagationNode),
		adjacency: make(map[string]map[string]struct{}),
		content:   make(map[string]*contentState),
	}
}

func (g *Graph) stripe(contentID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(contentID))
	return &g.stripes[h.Sum32()%stripeCount]
}

// SetContentScore registers (or refreshes) the composite attention score for
// a content item. Propagation events for unscored content are rejected.
func (g *Graph) SetContentScore(contentID string, composite float64) {
	g.contentMu.Lock()
	defer g.contentMu.Unlock()
	if state, ok := g.content[contentID]; ok {
		state.composite = composite
		return
	}
	g.content[contentID] = &contentState{
		composite:  composite,
		nodeVisits: make(map[string]int),
	}
}

// ContentScore returns the registered composite score for a content item.
func (g *Graph) ContentScore(contentID string) (float64, bool) {
	g.contentMu.RLock()
	defer g.contentMu.RUnlock()
	state, ok := g.content[contentID]
	if !ok {
		return 0, false
	}
	return state.composite, true
}

func (g *Graph) state(contentID string) (*contentState, bool) {
	g.contentMu.RLock()
	defer g.contentMu.RUnlock()
	state, ok := g.content[contentID]
	return state, ok
}

// SeedNode installs influence, reach, and engagement for an identity,
// creating the node if needed. This is how the identity collaborator's
// profile data enters the graph.
func (g *Graph) SeedNode(userID, platform string, influence float64, reach int64, engagementRate float64) *models.PropagationNode {
	id := models.NodeID(userID, platform)
	g.nodesMu.Lock()
	defer g.nodesMu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		node = &models.PropagationNode{
			ID:       id,
			UserID:   userID,
			Platform: platform,
		}
		g.nodes[id] = node
	}
	node.InfluenceWeight = clamp01(influence)
	node.Reach = reach
	node.EngagementRate = clamp01(engagementRate)
	node.UpdatedAt = time.Now()
	return node
}

// Node returns a copy of a node by id.
func (g *Graph) Node(id string) (models.PropagationNode, bool) {
	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return models.PropagationNode{}, false
	}
	return *node, true
}

func (g *Graph) nodeOrCreate(userID, platform string, now time.Time) *models.PropagationNode {
	id := models.NodeID(userID, platform)
	if node, ok := g.nodes[id]; ok {
		return node
	}
	node := &models.PropagationNode{
		ID:              id,
		UserID:          userID,
		Platform:        platform,
		InfluenceWeight: defaultInfluence,
		EngagementRate:  defaultEngagementRate,
		UpdatedAt:       now,
	}
	g.nodes[id] = node
	return node
}

// RecordEvent records a propagation event, returning the inserted edge.
// Content must already carry an attention score; edge weights must come out
// strictly positive.
func (g *Graph) RecordEvent(ev Event) (models.PropagationEdge, error) {
	state, ok := g.state(ev.ContentID)
	if !ok {
		return models.PropagationEdge{}, &InconsistencyError{ContentID: ev.ContentID}
	}
	if ev.Strength <= 0 {
		return models.PropagationEdge{}, fmt.Errorf("interaction strength must be positive, got %v", ev.Strength)
	}

	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	mu := g.stripe(ev.ContentID)
	mu.Lock()
	defer mu.Unlock()

	g.nodesMu.Lock()
	source := g.nodeOrCreate(ev.SourceUserID, ev.SourcePlatform, now)

	var target *models.PropagationNode
	if ev.TargetUserID != "" {
		target = g.nodeOrCreate(ev.TargetUserID, ev.TargetPlatform, now)
	}

	weight := g.edgeWeight(source, target, ev.Strength)
	if ev.SourcePlatform != ev.TargetPlatform {
		weight *= g.cfg.TransferLossFactor
	}
	if weight <= 0 {
		g.nodesMu.Unlock()
		return models.PropagationEdge{}, fmt.Errorf("computed edge weight %v is not positive", weight)
	}

	g.touchNode(source, ev.Strength, weight, now)
	if target != nil {
		g.touchNode(target, ev.Strength, weight, now)
		if g.adjacency[source.ID] == nil {
			g.adjacency[source.ID] = make(map[string]struct{})
		}
		g.adjacency[source.ID][target.ID] = struct{}{}
	}
	g.nodesMu.Unlock()

	edge := models.PropagationEdge{
		ID:              uuid.NewString(),
		SourceID:        source.ID,
		ContentID:       ev.ContentID,
		SourcePlatform:  ev.SourcePlatform,
		TargetPlatform:  ev.TargetPlatform,
		InteractionType: ev.InteractionType,
		Weight:          weight,
		Timestamp:       now,
	}
	if target != nil {
		targetID := target.ID
		edge.TargetID = &targetID
	}

	state.edges = append(state.edges, edge)
	state.weightSum += weight
	if state.firstEventAt.IsZero() {
		state.firstEventAt = now
	}
	state.lastEventAt = now

	state.nodeVisits[source.ID]++
	state.totalVisits++
	if target != nil {
		state.nodeVisits[target.ID]++
		state.totalVisits++
	}

	state.loopStrength = g.loopStrength(state, now)
	return edge, nil
}

// edgeWeight blends source influence, log-discounted reach, and both sides'
// engagement rates, scaled by interaction strength. Broadcast edges reuse the
// source engagement rate as receptivity.
func (g *Graph) edgeWeight(source, target *models.PropagationNode, strength float64) float64 {
	receptivity := source.EngagementRate
	if target != nil {
		receptivity = target.EngagementRate
	}
	reachFactor := 0.0
	if source.Reach > 1 {
		reachFactor = math.Min(1, math.Log(float64(source.Reach))/20)
	}
	return (0.4*source.InfluenceWeight + 0.2*reachFactor + 0.3*source.EngagementRate + 0.3*receptivity) * strength
}

// touchNode recomputes a node's derived metrics from its accumulated event
// history. Engagement rate is the running mean of interaction strengths;
// influence drifts toward the weight of the edges it keeps producing.
func (g *Graph) touchNode(node *models.PropagationNode, strength, weight float64, now time.Time) {
	node.EventCount++
	node.EngagementRate += (clamp01(strength) - node.EngagementRate) / float64(node.EventCount)
	node.InfluenceWeight = clamp01(0.9*node.InfluenceWeight + 0.1*math.Min(1, weight))
	node.UpdatedAt = now
}

// loopStrength scores reciprocal amplification for one content item: how
// much its average edge weight, node-revisit convergence, and recency stack
// up. Convergence is the share of visits landing on already-visited nodes.
func (g *Graph) loopStrength(state *contentState, now time.Time) float64 {
	if len(state.edges) == 0 {
		return 0
	}

	avgWeight := math.Min(1, state.weightSum/float64(len(state.edges)))

	repeated := 0
	for _, visits := range state.nodeVisits {
		if visits > 1 {
			repeated++
		}
	}
	// No node revisited means attention has not circled back: no loop yet.
	if repeated == 0 {
		return 0
	}
	convergence := float64(repeated) / float64(state.totalVisits)

	ageHours := now.Sub(state.firstEventAt).Hours()
	ageFactor := math.Max(0.1, 1/(1+0.01*ageHours))

	return math.Min(1, 0.5*avgWeight+0.3*clamp01(convergence)+0.2*ageFactor)
}

// LoopStrength returns the current loop strength for a content item.
func (g *Graph) LoopStrength(contentID string) float64 {
	mu := g.stripe(contentID)
	mu.Lock()
	defer mu.Unlock()

	state, ok := g.state(contentID)
	if !ok {
		return 0
	}
	return state.loopStrength
}

// Resonant reports whether a content item's loop strength exceeds the
// configured resonance threshold.
func (g *Graph) Resonant(contentID string) bool {
	return g.LoopStrength(contentID) > g.cfg.ResonanceThreshold
}

// PropagationCount returns the number of edges recorded for a content item.
func (g *Graph) PropagationCount(contentID string) int {
	mu := g.stripe(contentID)
	mu.Lock()
	defer mu.Unlock()

	state, ok := g.state(contentID)
	if !ok {
		return 0
	}
	return len(state.edges)
}

// AverageEdgeWeight returns the mean edge weight for a content item.
func (g *Graph) AverageEdgeWeight(contentID string) float64 {
	mu := g.stripe(contentID)
	mu.Lock()
	defer mu.Unlock()

	state, ok := g.state(contentID)
	if !ok || len(state.edges) == 0 {
		return 0
	}
	return state.weightSum / float64(len(state.edges))
}

// Edges returns a copy of the edges recorded for a content item.
func (g *Graph) Edges(contentID string) []models.PropagationEdge {
	mu := g.stripe(contentID)
	mu.Lock()
	defer mu.Unlock()

	state, ok := g.state(contentID)
	if !ok {
		return nil
	}
	out := make([]models.PropagationEdge, len(state.edges))
	copy(out, state.edges)
	return out
}

// Traverse walks the graph breadth-first from a starting node, hard-stopping
// at maxDepth hops (the configured default when maxDepth <= 0). Returns
// visited node ids in traversal order; cycles terminate via the visited set.
func (g *Graph) Traverse(startID string, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = g.cfg.MaxTraversalDepth
	}

	g.nodesMu.RLock()
	defer g.nodesMu.RUnlock()

	if _, ok := g.nodes[startID]; !ok {
		return nil
	}

	visited := map[string]bool{startID: true}
	order := []string{startID}
	frontier := []string{startID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for neighbor := range g.adjacency[id] {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				order = append(order, neighbor)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return order
}

// Stats returns the read-only per-content aggregate for analytics callers.
func (g *Graph) Stats(contentID string) models.ContentPropagationStats {
	mu := g.stripe(contentID)
	mu.Lock()
	defer mu.Unlock()

	stats := models.ContentPropagationStats{ContentID: contentID}
	state, ok := g.state(contentID)
	if !ok || len(state.edges) == 0 {
		return stats
	}

	crossPlatform := 0
	for _, edge := range state.edges {
		if edge.CrossPlatform() {
			crossPlatform++
		}
	}

	stats.EdgeCount = len(state.edges)
	stats.AverageWeight = state.weightSum / float64(len(state.edges))
	stats.LoopStrength = state.loopStrength
	stats.Resonant = state.loopStrength > g.cfg.ResonanceThreshold
	stats.UniqueNodes = len(state.nodeVisits)
	stats.CrossPlatformPct = float64(crossPlatform) / float64(len(state.edges))
	return stats
}

// Analytics summarizes graph activity across all tracked content.
func (g *Graph) Analytics() models.PropagationAnalytics {
	g.contentMu.RLock()
	ids := make([]string, 0, len(g.content))
	for id := range g.content {
		ids = append(ids, id)
	}
	g.contentMu.RUnlock()

	out := models.PropagationAnalytics{ResonanceThreshold: g.cfg.ResonanceThreshold}
	var loopSum float64
	tracked := 0
	for _, id := range ids {
		mu := g.stripe(id)
		mu.Lock()
		state, ok := g.state(id)
		if !ok || len(state.edges) == 0 {
			mu.Unlock()
			continue
		}
		tracked++
		out.TotalEdges += len(state.edges)
		loopSum += state.loopStrength
		if state.loopStrength > g.cfg.ResonanceThreshold {
			out.ResonantContent++
		}
		mu.Unlock()
	}
	out.TrackedContent = tracked
	if tracked > 0 {
		out.AverageLoopStrength = loopSum / float64(tracked)
	}
	return out
}

// CleanupExpiredLoops drops propagation state for content whose last event
// fell outside the loop window. Returns the number of content items cleaned.
// Scores stay registered so later events are still accepted.
func (g *Graph) CleanupExpiredLoops(now time.Time) int {
	cutoff := now.Add(-time.Duration(g.cfg.LoopWindowHours) * time.Hour)

	g.contentMu.RLock()
	ids := make([]string, 0, len(g.content))
	for id := range g.content {
		ids = append(ids, id)
	}
	g.contentMu.RUnlock()

	cleaned := 0
	for _, id := range ids {
		mu := g.stripe(id)
		mu.Lock()
		state, ok := g.state(id)
		if ok && len(state.edges) > 0 && state.lastEventAt.Before(cutoff) {
			state.edges = nil
			state.nodeVisits = make(map[string]int)
			state.totalVisits = 0
			state.weightSum = 0
			state.loopStrength = 0
			state.firstEventAt = time.Time{}
			cleaned++
		}
		mu.Unlock()
	}
	return cleaned
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
