package pools

import "testing"

type widget struct {
	resetCalled bool
	value       int
}

func (w *widget) Reset() {
	w.resetCalled = true
	w.value = 0
}

func TestSmartPoolWarmsUpAndReuses(t *testing.T) {
	created := 0
	sp := NewSmartPool(SmartPoolConfig{
		New: func() any {
			created++
			return &widget{}
		},
		WarmupSize: 5,
	})

	if created != 5 {
		t.Fatalf("created = %d, want 5 after warmup", created)
	}

	obj := sp.Get()
	if obj == nil {
		t.Fatal("expected a warmed-up object")
	}

	stats := sp.Stats()
	if stats.Gets != 1 {
		t.Errorf("Gets = %d, want 1", stats.Gets)
	}
	if stats.News != 0 {
		t.Errorf("News = %d, want 0 (warmup objects are not pool misses)", stats.News)
	}
}

func TestSmartPoolPutResetsObject(t *testing.T) {
	sp := NewSmartPool(SmartPoolConfig{
		New:   func() any { return &widget{} },
		Reset: func(o any) { o.(*widget).Reset() },
	})

	w := &widget{value: 42}
	sp.Put(w)

	if !w.resetCalled {
		t.Error("expected Reset to be called on Put")
	}
	if w.value != 0 {
		t.Errorf("value = %d, want 0 after reset", w.value)
	}
}

func TestConnectionPoolResetsOnPut(t *testing.T) {
	cp := NewConnectionPool(func() any { return &widget{} })

	w := &widget{value: 7}
	cp.Put(w)

	if !w.resetCalled {
		t.Error("expected Reset to be called by ConnectionPool.Put")
	}

	got := cp.Get().(*widget)
	if got.value != 0 {
		t.Errorf("value = %d, want 0", got.value)
	}

	gets, puts, hitRate := cp.Stats()
	if gets != 1 || puts != 1 {
		t.Errorf("gets=%d puts=%d, want 1,1", gets, puts)
	}
	if hitRate != 1.0 {
		t.Errorf("hitRate = %f, want 1.0", hitRate)
	}
}

func TestGCStatsReturnsNonZeroSys(t *testing.T) {
	s := Stats()
	if s.Sys == 0 {
		t.Error("expected nonzero Sys memory")
	}
}
