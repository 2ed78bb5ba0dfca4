package score

import (
	"sync"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

// History keeps the append-only score log per content item. Versions are
// assigned on append and are strictly increasing per content id; appends for
// the same content item are serialized, appends for distinct items are not.
type History struct {
	mu      sync.RWMutex
	entries map[string]*contentHistory
}

type contentHistory struct {
	mu     sync.Mutex
	scores []models.AttentionScore
}

// NewHistory creates an empty score history.
func NewHistory() *History {
	return &History{entries: make(map[string]*contentHistory)}
}

func (h *History) forContent(contentID string) *contentHistory {
	h.mu.RLock()
	ch, ok := h.entries[contentID]
	h.mu.RUnlock()
	if ok {
		return ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok = h.entries[contentID]; ok {
		return ch
	}
	ch = &contentHistory{}
	h.entries[contentID] = ch
	return ch
}

// Append stores a new score version and returns the stored entry with its
// assigned version number.
func (h *History) Append(s models.AttentionScore) models.AttentionScore {
	ch := h.forContent(s.ContentID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	s.Version = int64(len(ch.scores)) + 1
	ch.scores = append(ch.scores, s)
	return s
}

// Latest returns the most recent score version for a content item.
func (h *History) Latest(contentID string) (models.AttentionScore, bool) {
	ch := h.forContent(contentID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if len(ch.scores) == 0 {
		return models.AttentionScore{}, false
	}
	return ch.scores[len(ch.scores)-1], true
}

// Versions returns a copy of the full score history for a content item,
// oldest first.
func (h *History) Versions(contentID string) []models.AttentionScore {
	ch := h.forContent(contentID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	out := make([]models.AttentionScore, len(ch.scores))
	copy(out, ch.scores)
	return out
}

// Scored reports whether a content item has at least one score version.
func (h *History) Scored(contentID string) bool {
	_, ok := h.Latest(contentID)
	return ok
}
