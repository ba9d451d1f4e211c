package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"llmd/internal/llm/llmtest"
	"llmd/pkg/types"
)

func TestNewDefaults(t *testing.T) {
	m := New(Config{})
	defer m.Close()
	if m.idleTTL != defaultIdleTTL {
		t.Fatalf("expected default idleTTL=%v got %v", defaultIdleTTL, m.idleTTL)
	}
	if m.sweepInterval != defaultSweepInterval {
		t.Fatalf("expected default sweepInterval=%v got %v", defaultSweepInterval, m.sweepInterval)
	}
}

func TestAcquireLoadsOnceAndReuses(t *testing.T) {
	f := newFixture(t, nil)
	p := f.artifact(t, types.CategoryChat, "tiny")

	lm1, err := f.m.Acquire(testCtx(t), "tiny", types.CategoryChat)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lm2, err := f.m.Acquire(testCtx(t), "tiny.gguf", types.CategoryChat)
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if lm1 != lm2 {
		t.Fatalf("expected the same loaded model")
	}
	if n := f.engine.Loads(p); n != 1 {
		t.Fatalf("expected 1 load, got %d", n)
	}
	if lm1.Identity() != (Identity{Category: types.CategoryChat, Path: p}) {
		t.Fatalf("unexpected identity %+v", lm1.Identity())
	}
	if !f.m.Ready() || !f.m.IsLoaded(p) {
		t.Fatalf("expected model reported loaded")
	}
}

func TestAcquireCoalescesConcurrentLoads(t *testing.T) {
	f := newFixture(t, &llmtest.Engine{LoadDelay: 50 * time.Millisecond})
	p := f.artifact(t, types.CategoryEmbedding, "emb")

	const n = 16
	var wg sync.WaitGroup
	got := make([]*LoadedModel, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = f.m.Acquire(context.Background(), "emb", types.CategoryEmbedding)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("acquire %d: %v", i, errs[i])
		}
		if got[i] != got[0] {
			t.Fatalf("acquire %d returned a different record", i)
		}
	}
	if loads := f.engine.Loads(p); loads != 1 {
		t.Fatalf("expected exactly 1 load, got %d", loads)
	}
}

func TestAcquireDistinctIdentitiesLoadInParallel(t *testing.T) {
	f := newFixture(t, &llmtest.Engine{LoadDelay: 100 * time.Millisecond})
	f.artifact(t, types.CategoryChat, "a")
	f.artifact(t, types.CategoryEmbedding, "b")

	start := time.Now()
	var wg sync.WaitGroup
	for _, c := range []struct {
		name string
		cat  types.Category
	}{{"a", types.CategoryChat}, {"b", types.CategoryEmbedding}} {
		wg.Add(1)
		go func(name string, cat types.Category) {
			defer wg.Done()
			if _, err := f.m.Acquire(context.Background(), name, cat); err != nil {
				t.Errorf("acquire %s: %v", name, err)
			}
		}(c.name, c.cat)
	}
	wg.Wait()
	if el := time.Since(start); el > 190*time.Millisecond {
		t.Fatalf("loads of different identities appear serialized: %v", el)
	}
}

func TestAcquireNotFoundCarriesPath(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.m.Acquire(testCtx(t), "does-not-exist", types.CategoryChat)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	want := f.store.Resolve("does-not-exist", types.CategoryChat)
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not mention %q", err, want)
	}
	if len(f.m.List()) != 0 {
		t.Fatalf("not-found must not leave a cache entry")
	}
	if f.engine.TotalLoads() != 0 {
		t.Fatalf("engine should not be called for a missing artifact")
	}
}

func TestAcquireWrongCategory(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryChat, "chatty")
	_, err := f.m.Acquire(testCtx(t), "chatty", types.CategoryEmbedding)
	if !IsWrongCategory(err) {
		t.Fatalf("expected wrong category, got %v", err)
	}
	var wc *WrongCategoryError
	if !errors.As(err, &wc) || wc.Actual != types.CategoryChat || wc.Requested != types.CategoryEmbedding {
		t.Fatalf("unexpected error detail: %+v", wc)
	}
	want := f.store.Resolve("chatty", types.CategoryEmbedding)
	if wc.Path != want || !strings.Contains(err.Error(), want) {
		t.Fatalf("expected attempted path %q in %v", want, err)
	}
	if nf := wc.AsNotFound(); nf.Path != want || !IsNotFound(nf) {
		t.Fatalf("unexpected not-found form %+v", nf)
	}
}

func TestAcquireFailureIsNotCached(t *testing.T) {
	boom := errors.New("bad magic")
	eng := &llmtest.Engine{LoadErr: boom, LoadDelay: 100 * time.Millisecond}
	f := newFixture(t, eng)
	p := f.artifact(t, types.CategoryReranker, "rr")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.m.Acquire(context.Background(), "rr", types.CategoryReranker)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if !IsLoadError(err) || !errors.Is(err, boom) {
			t.Fatalf("waiter %d: expected LoadError wrapping boom, got %v", i, err)
		}
	}
	if len(f.m.List()) != 0 {
		t.Fatalf("failed load left an entry: %+v", f.m.List())
	}
	if n := eng.Loads(p); n != 1 {
		t.Fatalf("expected one coalesced load, got %d", n)
	}

	eng.LoadErr = nil
	if _, err := f.m.Acquire(testCtx(t), "rr", types.CategoryReranker); err != nil {
		t.Fatalf("retry acquire: %v", err)
	}
	if n := eng.Loads(p); n != 2 {
		t.Fatalf("expected a fresh load after failure, got %d", n)
	}
}

func TestAcquireWaiterCancelDoesNotAbortLoad(t *testing.T) {
	f := newFixture(t, &llmtest.Engine{LoadDelay: 100 * time.Millisecond})
	p := f.artifact(t, types.CategoryChat, "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.m.Acquire(ctx, "slow", types.CategoryChat); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	entries := f.m.List()
	if len(entries) != 1 || entries[0].State != StateLoading {
		t.Fatalf("expected a loading placeholder, got %+v", entries)
	}
	if f.m.IsLoaded(p) {
		t.Fatalf("loading entry must not count as loaded")
	}

	lm, err := f.m.Acquire(testCtx(t), "slow", types.CategoryChat)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lm.Category() != types.CategoryChat || f.engine.Loads(p) != 1 {
		t.Fatalf("expected the original load to be reused, loads=%d", f.engine.Loads(p))
	}
}

func TestAcquireRefreshesLastUsed(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryChat, "m")
	lm, err := f.m.Acquire(testCtx(t), "m", types.CategoryChat)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	first := lm.LastUsed()
	f.clock.Advance(time.Minute)
	if _, err := f.m.Acquire(testCtx(t), "m", types.CategoryChat); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := lm.LastUsed(); !got.Equal(first.Add(time.Minute)) {
		t.Fatalf("lastUsed not refreshed: first=%v now=%v", first, got)
	}
}

func TestReleaseKeepsModelCached(t *testing.T) {
	f := newFixture(t, nil)
	p := f.artifact(t, types.CategoryChat, "m")
	lm, err := f.m.Acquire(testCtx(t), "m", types.CategoryChat)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	before := lm.LastUsed()
	f.clock.Advance(time.Minute)
	f.m.Release(lm.Identity())
	if !f.m.IsLoaded(p) || !lm.Alive() {
		t.Fatalf("release must not evict")
	}
	if !lm.LastUsed().Equal(before) {
		t.Fatalf("release must not touch lastUsed")
	}
}

func TestEmbedKeepsInputOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryEmbedding, "e")
	lm, err := f.m.Acquire(testCtx(t), "e", types.CategoryEmbedding)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	out, err := lm.Embed(testCtx(t), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(out))
	}
	if out[0][0] != 1 || out[1][1] != 3 {
		t.Fatalf("vectors out of order: %v", out)
	}
}

func TestRankSortsDescending(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryReranker, "r")
	lm, err := f.m.Acquire(testCtx(t), "r", types.CategoryReranker)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	docs := []string{"zzz", "panda bear", "pandas"}
	out, err := lm.Rank(testCtx(t), "panda", docs)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(out) != len(docs) {
		t.Fatalf("expected %d results, got %d", len(docs), len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Score < out[i].Score {
			t.Fatalf("not sorted: %+v", out)
		}
	}
	if out[len(out)-1].Document != "zzz" {
		t.Fatalf("least relevant document should be last: %+v", out)
	}
}

func TestCategoryMismatchOnRuntime(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryChat, "c")
	f.artifact(t, types.CategoryEmbedding, "e")
	chat, err := f.m.Acquire(testCtx(t), "c", types.CategoryChat)
	if err != nil {
		t.Fatalf("acquire chat: %v", err)
	}
	if _, err := chat.Embed(testCtx(t), []string{"x"}); !IsWrongCategory(err) {
		t.Fatalf("expected wrong category from Embed on chat, got %v", err)
	}
	emb, err := f.m.Acquire(testCtx(t), "e", types.CategoryEmbedding)
	if err != nil {
		t.Fatalf("acquire embedding: %v", err)
	}
	if _, err := emb.NewGenerationContext(); !IsWrongCategory(err) {
		t.Fatalf("expected wrong category from NewGenerationContext, got %v", err)
	}
	if _, err := emb.Rank(testCtx(t), "q", []string{"d"}); !IsWrongCategory(err) {
		t.Fatalf("expected wrong category from Rank, got %v", err)
	}
}

func TestListAvailableReflectsCache(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryChat, "c1")
	f.artifact(t, types.CategoryChat, "c2")
	f.artifact(t, types.CategoryEmbedding, "e1")

	if _, err := f.m.Acquire(testCtx(t), "c2", types.CategoryChat); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	loaded := map[string]bool{}
	for _, m := range f.m.ListAvailable() {
		loaded[string(m.Type)+"/"+m.Name] = m.Loaded
	}
	want := map[string]bool{"chat/c1.gguf": false, "chat/c2.gguf": true, "embedding/e1.gguf": false}
	for k, v := range want {
		if got, ok := loaded[k]; !ok || got != v {
			t.Fatalf("%s: loaded=%v ok=%v, want %v (all=%v)", k, got, ok, v, loaded)
		}
	}

	if !f.m.Unload("c2") {
		t.Fatalf("unload failed")
	}
	for _, m := range f.m.ListAvailable() {
		if m.Loaded {
			t.Fatalf("%s still reported loaded after unload", m.Name)
		}
	}
}

func TestStatusReportsEntries(t *testing.T) {
	f := newFixture(t, nil)
	f.artifact(t, types.CategoryEmbedding, "e")
	if _, err := f.m.Acquire(testCtx(t), "e", types.CategoryEmbedding); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	st := f.m.Status()
	if len(st.Instances) != 1 || st.Instances[0].State != string(StateReady) || st.Instances[0].Type != types.CategoryEmbedding {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.LoadsTotal != 1 {
		t.Fatalf("expected loads_total=1, got %d", st.LoadsTotal)
	}
}
