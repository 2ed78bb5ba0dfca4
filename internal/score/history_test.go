package score

import (
	"sync"
	"testing"
	"time"

	"github.com/EchoLayerS/EchoLayer/pkg/models"
)

func TestHistoryAssignsIncreasingVersions(t *testing.T) {
	h := NewHistory()

	for i := 1; i <= 3; i++ {
		stored := h.Append(models.AttentionScore{ContentID: "content-1", Composite: 0.5, CalculatedAt: time.Now()})
		if stored.Version != int64(i) {
			t.Fatalf("expected version %d, got %d", i, stored.Version)
		}
	}

	latest, ok := h.Latest("content-1")
	if !ok || latest.Version != 3 {
		t.Fatalf("expected latest version 3, got %+v ok=%v", latest, ok)
	}

	versions := h.Versions("content-1")
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i, v := range versions {
		if v.Version != int64(i)+1 {
			t.Fatalf("history out of order at index %d: %+v", i, v)
		}
	}
}

func TestHistoryUnknownContent(t *testing.T) {
	h := NewHistory()
	if _, ok := h.Latest("ghost"); ok {
		t.Fatal("expected no score for unknown content")
	}
	if h.Scored("ghost") {
		t.Fatal("unknown content must not report as scored")
	}
}

func TestHistoryConcurrentAppendsStayStrictlyIncreasing(t *testing.T) {
	h := NewHistory()
	const writers = 16
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				h.Append(models.AttentionScore{ContentID: "content-1", Composite: 0.5})
			}
		}()
	}
	wg.Wait()

	versions := h.Versions("content-1")
	if len(versions) != writers*perWriter {
		t.Fatalf("expected %d versions, got %d", writers*perWriter, len(versions))
	}
	for i, v := range versions {
		if v.Version != int64(i)+1 {
			t.Fatalf("version gap at index %d: got %d", i, v.Version)
		}
	}
}
