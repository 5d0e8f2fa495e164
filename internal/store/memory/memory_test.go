package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/store"
	"github.com/zegl/eligo/internal/store/storetest"
)

func TestMemoryStore_Compliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestMemoryStore_ConcurrentSameFieldWritesConverge(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Items().Create(ctx, &model.Item{ID: "I1", ListID: "L1", UserID: "A", Text: "milk", TextChangeTime: 100, CreateTime: 100}); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			_ = s.Items().Update(ctx, "I1", model.ItemPatch{Text: &model.Stamped{Value: "v", Time: 100 + ts}})
		}(i)
	}
	wg.Wait()

	got, err := s.Items().Get(ctx, "I1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.TextChangeTime != 150 {
		t.Fatalf("expected the latest write to survive, got change time %d", got.TextChangeTime)
	}
}

func TestMemoryStore_HealthChecker(t *testing.T) {
	hc := store.NewHealthChecker(New(), zerolog.Nop(), 0)
	if !hc.Probe(context.Background()) {
		t.Fatalf("memory store should probe healthy")
	}
}
