package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/banyan-labs/lead-optimizer/internal/classify"
	"github.com/banyan-labs/lead-optimizer/internal/config"
	"github.com/banyan-labs/lead-optimizer/internal/model"
	"github.com/banyan-labs/lead-optimizer/internal/scorer"
	"github.com/banyan-labs/lead-optimizer/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu    sync.Mutex
	saved map[string]model.EnrichedLead
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]model.EnrichedLead)}
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Close() error                      { return nil }

func (m *memStore) Save(ctx context.Context, lead model.EnrichedLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[lead.Lead.ID] = lead
	return nil
}

func (m *memStore) Has(ctx context.Context, leadID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.saved[leadID]
	return ok, nil
}

func (m *memStore) Get(ctx context.Context, leadID string) (*model.EnrichedLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead, ok := m.saved[leadID]; ok {
		return &lead, nil
	}
	return nil, nil
}

func (m *memStore) List(ctx context.Context, filter store.Filter) ([]model.EnrichedLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EnrichedLead
	for _, lead := range m.saved {
		if filter.State == "" || lead.State == filter.State {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context) (map[model.LeadState]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.LeadState]int)
	for _, lead := range m.saved {
		counts[lead.State]++
	}
	return counts, nil
}

// stubResolver returns canned statuses by company name and counts calls.
type stubResolver struct {
	mu        sync.Mutex
	byCompany map[string]model.NonprofitResult
	resolves  int
}

func (s *stubResolver) Resolve(ctx context.Context, lead model.LeadRecord, corpus string) model.NonprofitResult {
	s.mu.Lock()
	s.resolves++
	s.mu.Unlock()
	if r, ok := s.byCompany[lead.Company]; ok {
		return r
	}
	return model.NonprofitResult{Status: model.StatusUnverified}
}

// stubFetcher returns canned signals by URL and counts fetches.
type stubFetcher struct {
	mu      sync.Mutex
	byURL   map[string]*model.WebsiteSignals
	fetches int
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (*model.WebsiteSignals, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if w, ok := s.byURL[url]; ok {
		return w, nil
	}
	return &model.WebsiteSignals{Reachable: false}, nil
}

func newTestPipeline(st store.Store, resolver Resolver, fetcher *stubFetcher) *Pipeline {
	return New(
		config.PipelineConfig{Concurrency: 3, MaxAttempts: 2, BackoffMillis: 1, MaxBackoffSecs: 1},
		st,
		resolver,
		classify.NewClassifier(nil, 1.0),
		scorer.NewScorer(map[string]config.ProductConfig{
			"compass": {Qualified: 6, HighPriority: 8},
			"upcurve": {Qualified: 6, HighPriority: 8, RevenueCutoff: 5_000_000, FoundedAfterYear: 2018},
		}),
		fetcher,
	)
}

func batchOf(ids ...string) []model.LeadRecord {
	var batch []model.LeadRecord
	for _, id := range ids {
		batch = append(batch, model.LeadRecord{
			ID:      id,
			Company: "Hope Recovery House " + id,
			Website: "hopehouse-" + id + ".org",
		})
	}
	return batch
}

func TestRun_EveryLeadYieldsOneCheckpoint(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st, &stubResolver{}, &stubFetcher{})

	batch := batchOf("l1", "l2", "l3", "l4", "l5")
	summary, err := p.Run(context.Background(), batch)

	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 5, summary.Done)
	assert.Zero(t, summary.Failed)

	require.Len(t, st.saved, 5)
	for _, lead := range batch {
		got, gerr := st.Get(context.Background(), lead.ID)
		require.NoError(t, gerr)
		require.NotNil(t, got, "missing checkpoint for %s", lead.ID)
		assert.Equal(t, model.LeadStateDone, got.State)
	}
}

func TestRun_ResumeSkipsCheckpointed(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st, &stubResolver{}, &stubFetcher{})

	batch := batchOf("l1", "l2", "l3")
	_, err := p.Run(context.Background(), batch)
	require.NoError(t, err)

	first := make(map[string]time.Time)
	for id, lead := range st.saved {
		first[id] = lead.EnrichedAt
	}

	// Second run over the same batch must not reprocess anything.
	p2 := newTestPipeline(st, &stubResolver{}, &stubFetcher{})
	summary, err := p2.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Resumed)
	assert.Zero(t, summary.Processed)

	for id, lead := range st.saved {
		assert.Equal(t, first[id], lead.EnrichedAt, "checkpoint %s was rewritten", id)
	}
}

func TestRun_InterruptedThenResumedMatchesUninterrupted(t *testing.T) {
	batch := batchOf("l1", "l2", "l3", "l4")

	// Uninterrupted reference run.
	ref := newMemStore()
	_, err := newTestPipeline(ref, &stubResolver{}, &stubFetcher{}).Run(context.Background(), batch)
	require.NoError(t, err)

	// Interrupted run: first half only, then resume with the full batch.
	st := newMemStore()
	_, err = newTestPipeline(st, &stubResolver{}, &stubFetcher{}).Run(context.Background(), batch[:2])
	require.NoError(t, err)
	require.Len(t, st.saved, 2)

	_, err = newTestPipeline(st, &stubResolver{}, &stubFetcher{}).Run(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, st.saved, len(ref.saved))
	for id, want := range ref.saved {
		got := st.saved[id]
		assert.Equal(t, want.State, got.State)
		assert.Equal(t, want.Nonprofit.Status, got.Nonprofit.Status)
		assert.Equal(t, want.Scores, got.Scores)
	}
}

func TestRun_MissingCompanyIsInsufficientData(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st, &stubResolver{}, &stubFetcher{})

	summary, err := p.Run(context.Background(), []model.LeadRecord{{ID: "l1", Email: "a@b.org"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Done)

	got, err := st.Get(context.Background(), "l1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.LeadStateDone, got.State)
	assert.True(t, got.InsufficientData)
	assert.Equal(t, model.StatusUnverified, got.Nonprofit.Status)
	assert.Equal(t, model.OrgUnknown, got.OrgType.Type)
}

func TestRun_WebsiteCacheSharedAcrossLeads(t *testing.T) {
	st := newMemStore()
	fetcher := &stubFetcher{}
	p := newTestPipeline(st, &stubResolver{}, fetcher)

	batch := []model.LeadRecord{
		{ID: "l1", Company: "Hope House", Website: "hopehouse.org"},
		{ID: "l2", Company: "Hope House", Website: "hopehouse.org"},
		{ID: "l3", Company: "Hope House", Website: "https://hopehouse.org"},
	}

	// Concurrency 1 makes the cache hit deterministic.
	p.cfg.Concurrency = 1
	_, err := p.Run(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.fetches)
}

func TestRun_ResolverSharedAcrossDuplicateCompanies(t *testing.T) {
	st := newMemStore()
	resolver := &stubResolver{byCompany: map[string]model.NonprofitResult{
		"Hope House, Inc.": {Status: model.StatusLikelyNonprofit, Confidence: 0.7},
	}}
	p := newTestPipeline(st, resolver, &stubFetcher{})

	// Same organization under punctuation and suffix variants, no websites.
	batch := []model.LeadRecord{
		{ID: "l1", Company: "Hope House, Inc."},
		{ID: "l2", Company: "Hope House Inc"},
		{ID: "l3", Company: "HOPE HOUSE"},
	}

	// Concurrency 1 makes the cache hit deterministic.
	p.cfg.Concurrency = 1
	_, err := p.Run(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.resolves)
	for _, id := range []string{"l1", "l2", "l3"} {
		got, gerr := st.Get(context.Background(), id)
		require.NoError(t, gerr)
		require.NotNil(t, got)
		assert.Equal(t, model.StatusLikelyNonprofit, got.Nonprofit.Status)
	}
}

func TestRun_WebsiteDerivedFromEmailDomain(t *testing.T) {
	st := newMemStore()
	fetcher := &stubFetcher{byURL: map[string]*model.WebsiteSignals{
		"hopehouse.org": {
			Reachable: true,
			Corpus:    "501(c)(3) nonprofit sober living",
		},
	}}
	p := newTestPipeline(st, &stubResolver{}, fetcher)

	_, err := p.Run(context.Background(), []model.LeadRecord{
		{ID: "l1", Company: "Hope House", Email: "admin@hopehouse.org"},
		{ID: "l2", Company: "Grace House", Email: "grace@gmail.com"},
	})
	require.NoError(t, err)

	got, _ := st.Get(context.Background(), "l1")
	assert.True(t, got.Website.Reachable)

	// Freemail domains carry no website signal.
	got, _ = st.Get(context.Background(), "l2")
	assert.False(t, got.Website.Reachable)
	assert.Equal(t, 1, fetcher.fetches)
}

func TestRun_CancelledContextLeavesRemainingPending(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st, &stubResolver{}, &stubFetcher{})
	p.cfg.Concurrency = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.Run(ctx, batchOf("l1", "l2", "l3"))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Skipped)
	assert.Empty(t, st.saved)
}

func TestRun_ScoresReflectEvidence(t *testing.T) {
	st := newMemStore()
	fetcher := &stubFetcher{byURL: map[string]*model.WebsiteSignals{
		"hopehouse.org": {
			Reachable:       true,
			Corpus:          "501(c)(3) nonprofit sober living residential program beds donation",
			HasDonationPage: true,
		},
	}}
	resolver := &stubResolver{byCompany: map[string]model.NonprofitResult{
		"Hope Recovery House": {
			Status:     model.StatusVerifiedNonprofit,
			Confidence: 1.0,
			Revenue:    2_000_000,
			RulingYear: 2020,
		},
	}}
	p := newTestPipeline(st, resolver, fetcher)

	_, err := p.Run(context.Background(), []model.LeadRecord{
		{ID: "l1", Company: "Hope Recovery House", Website: "hopehouse.org"},
	})
	require.NoError(t, err)

	got, _ := st.Get(context.Background(), "l1")
	require.NotNil(t, got)
	assert.Equal(t, model.StatusVerifiedNonprofit, got.Nonprofit.Status)
	assert.NotEqual(t, model.OrgUnknown, got.OrgType.Type)
	assert.Positive(t, got.Scores["compass"].Score)
	assert.Positive(t, got.Scores["upcurve"].Score)
	assert.NotEmpty(t, got.BestFit)
	assert.Positive(t, got.DataQuality)
}
