package queue

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"
)

func TestActionIDsSortByCreationTime(t *testing.T) {
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, newActionID())
		time.Sleep(time.Millisecond)
	}

	if !sort.StringsAreSorted(ids) {
		t.Errorf("Expected lexicographic order to follow creation order: %v", ids)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("Duplicate id: %s", id)
		}
		seen[id] = true
	}

	t.Log("✓ IDs are unique and sort by creation time")
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("rejected")

	if !IsPermanent(Permanent(base)) {
		t.Error("Expected Permanent(err) to classify as permanent")
	}
	if IsPermanent(base) {
		t.Error("Expected a plain error to not classify as permanent")
	}
	if IsPermanent(nil) {
		t.Error("Expected nil to not classify as permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Expected Permanent(nil) to stay nil")
	}

	// The mark survives further wrapping.
	wrapped := fmt.Errorf("handler: %w", Permanent(base))
	if !IsPermanent(wrapped) {
		t.Error("Expected the mark to survive wrapping")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Expected the original error to stay reachable")
	}

	t.Log("✓ Permanent marks survive error wrapping")
}
