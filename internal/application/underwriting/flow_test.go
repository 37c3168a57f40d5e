package underwriting

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/domain"
)

type stubQueue struct {
	inFlight bool
	enqueued []worker.EnqueueParams
}

func (q *stubQueue) Enqueue(ctx context.Context, params worker.EnqueueParams) (string, error) {
	q.enqueued = append(q.enqueued, params)
	return "id", nil
}

func (q *stubQueue) HasInFlightResearchJob(ctx context.Context, jobType domain.JobType, researchID string) (bool, error) {
	return q.inFlight, nil
}

func (q *stubQueue) Acquire(context.Context, int, time.Duration, []domain.JobType) ([]*domain.Job, error) {
	return nil, nil
}

func (q *stubQueue) AcquireByIDs(context.Context, []string, int, time.Duration, []domain.JobType) ([]*domain.Job, error) {
	return nil, nil
}

func (q *stubQueue) RecoverStale(context.Context) (int64, error) { return 0, nil }
func (q *stubQueue) Get(context.Context, string) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}
func (q *stubQueue) Complete(context.Context, string, *domain.JobResult) error { return nil }
func (q *stubQueue) FailTerminal(context.Context, string, int, *domain.Failure, string) error {
	return nil
}
func (q *stubQueue) ScheduleRetry(context.Context, string, int, time.Time, *domain.Failure, string) error {
	return nil
}
func (q *stubQueue) Cancel(context.Context, string) error { return nil }
func (q *stubQueue) PurgeTerminal(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (q *stubQueue) ListFailed(context.Context, int, time.Time) ([]*domain.Job, error) {
	return nil, nil
}
func (q *stubQueue) ResetForRetry(context.Context, string, bool, time.Time, int) error { return nil }
func (q *stubQueue) Stats(context.Context) (*worker.QueueStats, error) {
	return &worker.QueueStats{}, nil
}
func (q *stubQueue) Health(context.Context) (*worker.QueueHealth, error) {
	return &worker.QueueHealth{}, nil
}

type mockResearchStore struct {
	rows    map[string]*domain.DomainResearch // keyed by domain name
	byID    map[string]*domain.DomainResearch
	plans   map[string]domain.BidPlan
	upserts int
}

func newMockResearchStore() *mockResearchStore {
	return &mockResearchStore{
		rows:  map[string]*domain.DomainResearch{},
		byID:  map[string]*domain.DomainResearch{},
		plans: map[string]domain.BidPlan{},
	}
}

func (m *mockResearchStore) Upsert(ctx context.Context, r *domain.DomainResearch) (*domain.DomainResearch, error) {
	m.upserts++
	if existing, ok := m.rows[r.Domain]; ok {
		existing.BuyNowPrice = r.BuyNowPrice
		existing.CurrentBid = r.CurrentBid
		existing.AuctionEndsAt = r.AuctionEndsAt
		return existing, nil
	}
	m.rows[r.Domain] = r
	m.byID[r.ID] = r
	return r, nil
}

func (m *mockResearchStore) Get(ctx context.Context, id string) (*domain.DomainResearch, error) {
	if r, ok := m.byID[id]; ok {
		return r, nil
	}
	return nil, domain.ErrResearchNotFound
}

func (m *mockResearchStore) Update(ctx context.Context, r *domain.DomainResearch) error {
	m.byID[r.ID] = r
	m.rows[r.Domain] = r
	return nil
}

func (m *mockResearchStore) SaveBidPlan(ctx context.Context, id string, plan domain.BidPlan) error {
	m.plans[id] = plan
	return nil
}

type mockReviews struct {
	pending   map[string][]string
	cancelled []string
}

func newMockReviews() *mockReviews {
	return &mockReviews{pending: map[string][]string{}}
}

func (m *mockReviews) EnsurePending(ctx context.Context, id string, checklist []string) error {
	if _, ok := m.pending[id]; !ok {
		m.pending[id] = checklist
	}
	return nil
}

func (m *mockReviews) CancelPending(ctx context.Context, id string) error {
	delete(m.pending, id)
	m.cancelled = append(m.cancelled, id)
	return nil
}

type mockPreviews struct {
	refreshed map[string]time.Time
	expired   []string
}

func newMockPreviews() *mockPreviews {
	return &mockPreviews{refreshed: map[string]time.Time{}}
}

func (m *mockPreviews) Refresh(ctx context.Context, id string, expiresAt time.Time) error {
	m.refreshed[id] = expiresAt
	return nil
}

func (m *mockPreviews) Expire(ctx context.Context, id string) error {
	m.expired = append(m.expired, id)
	return nil
}

type mockEvents struct{ events []domain.AcquisitionEvent }

func (m *mockEvents) Record(ctx context.Context, e domain.AcquisitionEvent) error {
	m.events = append(m.events, e)
	return nil
}

type mockEvaluator struct {
	eval *domain.Evaluation
}

func (m *mockEvaluator) EvaluateDomain(ctx context.Context, name string) (*domain.Evaluation, error) {
	return m.eval, nil
}

type onFlags struct{}

func (onFlags) IsEnabled(ctx context.Context, flag string) (bool, error) { return true, nil }

type flowFixture struct {
	flow     *Flow
	queue    *stubQueue
	research *mockResearchStore
	reviews  *mockReviews
	previews *mockPreviews
	events   *mockEvents
	eval     *mockEvaluator
}

func newFlowFixture() *flowFixture {
	f := &flowFixture{
		queue:    &stubQueue{},
		research: newMockResearchStore(),
		reviews:  newMockReviews(),
		previews: newMockPreviews(),
		events:   &mockEvents{},
		eval: &mockEvaluator{eval: &domain.Evaluation{
			CompositeScore: 0.8,
			Confidence:     0.9,
			RiskScore:      0.2,
			MaxBid:         300,
			Recommendation: "buy",
		}},
	}
	f.flow = NewFlow(f.queue, f.research, f.reviews, f.previews, f.events, f.eval, onFlags{})
	return f
}

func researchJob(t *testing.T, jobType domain.JobType, researchID string) *domain.Job {
	t.Helper()
	raw, err := json.Marshal(ResearchPayload{DomainResearchID: researchID})
	if err != nil {
		t.Fatal(err)
	}
	return &domain.Job{ID: "j", Type: jobType, Payload: raw}
}

func TestIngestListings_UpsertNoDuplicates(t *testing.T) {
	f := newFlowFixture()
	raw, _ := json.Marshal(IngestPayload{Listings: []Listing{
		{Domain: "example.com", TLD: "com", BuyNowPrice: 150},
	}})
	job := &domain.Job{ID: "j", Type: domain.JobIngestListings, Payload: raw}

	if err := f.flow.handleIngestListings(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	// Re-run the same candidate: updated, not duplicated.
	if err := f.flow.handleIngestListings(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if len(f.research.rows) != 1 {
		t.Errorf("rows = %d, want 1 after re-ingest", len(f.research.rows))
	}
	if f.research.upserts != 2 {
		t.Errorf("upserts = %d, want 2", f.research.upserts)
	}
	for _, p := range f.queue.enqueued {
		if p.Type != domain.JobEnrichCandidate {
			t.Errorf("unexpected enqueue %s", p.Type)
		}
	}
}

func TestEnrichThenScore_BuyDecision(t *testing.T) {
	f := newFlowFixture()
	row, _ := f.research.Upsert(context.Background(), &domain.DomainResearch{
		ID: "res-1", Domain: "example.com", CurrentBid: 40,
	})

	if err := f.flow.handleEnrichCandidate(context.Background(),
		researchJob(t, domain.JobEnrichCandidate, row.ID)); err != nil {
		t.Fatal(err)
	}
	if row.Evaluation == nil {
		t.Fatal("evaluation not stored")
	}
	if row.UnderwritingVersion != 1 {
		t.Errorf("underwriting version = %d, want 1", row.UnderwritingVersion)
	}

	if err := f.flow.handleScoreCandidate(context.Background(),
		researchJob(t, domain.JobScoreCandidate, row.ID)); err != nil {
		t.Fatal(err)
	}
	if row.Decision != domain.DecisionBuy {
		t.Errorf("decision = %s, want buy", row.Decision)
	}
	if _, ok := f.reviews.pending[row.ID]; !ok {
		t.Error("buy decision must open a pending review task")
	}
	if _, ok := f.previews.refreshed[row.ID]; !ok {
		t.Error("buy decision must refresh the preview build")
	}

	// Chain ends with a bid plan job.
	last := f.queue.enqueued[len(f.queue.enqueued)-1]
	if last.Type != domain.JobCreateBidPlan {
		t.Errorf("last enqueue = %s, want create_bid_plan", last.Type)
	}
}

func TestScore_LowConfidenceBuyBecomesWatchlist(t *testing.T) {
	f := newFlowFixture()
	row, _ := f.research.Upsert(context.Background(), &domain.DomainResearch{
		ID: "res-2", Domain: "risky.com",
	})
	row.Evaluation = &domain.Evaluation{Recommendation: "buy", Confidence: 0.5, RiskScore: 0.3}

	if err := f.flow.handleScoreCandidate(context.Background(),
		researchJob(t, domain.JobScoreCandidate, row.ID)); err != nil {
		t.Fatal(err)
	}
	if row.Decision != domain.DecisionWatchlist {
		t.Errorf("decision = %s, want watchlist", row.Decision)
	}
	if _, ok := f.reviews.pending[row.ID]; ok {
		t.Error("watchlist must not open a review task")
	}
}

func TestScore_HardFailSkipsBidPlan(t *testing.T) {
	f := newFlowFixture()
	row, _ := f.research.Upsert(context.Background(), &domain.DomainResearch{
		ID: "res-3", Domain: "tm-conflict.com",
	})
	row.Evaluation = &domain.Evaluation{Recommendation: "buy", Confidence: 0.9}
	row.HardFailReason = "trademark conflict"

	if err := f.flow.handleScoreCandidate(context.Background(),
		researchJob(t, domain.JobScoreCandidate, row.ID)); err != nil {
		t.Fatal(err)
	}
	if row.Decision != domain.DecisionPass {
		t.Errorf("decision = %s, want pass on hard fail", row.Decision)
	}
	if len(f.previews.expired) != 1 {
		t.Error("pass decision must expire the preview build")
	}
	for _, p := range f.queue.enqueued {
		if p.Type == domain.JobCreateBidPlan {
			t.Error("hard fail must not enqueue a bid plan")
		}
	}
}

func TestCreateBidPlan(t *testing.T) {
	f := newFlowFixture()
	row, _ := f.research.Upsert(context.Background(), &domain.DomainResearch{
		ID: "res-4", Domain: "example.com", CurrentBid: 120,
	})
	row.Evaluation = &domain.Evaluation{MaxBid: 250, Recommendation: "buy"}
	row.Decision = domain.DecisionBuy

	if err := f.flow.handleCreateBidPlan(context.Background(),
		researchJob(t, domain.JobCreateBidPlan, row.ID)); err != nil {
		t.Fatal(err)
	}
	plan := f.research.plans[row.ID]
	if plan.Action != domain.BidAuctionBid {
		t.Errorf("action = %s, want auction_bid", plan.Action)
	}
	if plan.Increment != 10 {
		t.Errorf("increment = %.0f for bid 120, want 10", plan.Increment)
	}
}

func TestPlanBid_BuyNowWhenAffordable(t *testing.T) {
	r := &domain.DomainResearch{
		Decision:    domain.DecisionBuy,
		BuyNowPrice: 80,
		Evaluation:  &domain.Evaluation{MaxBid: 100},
	}
	plan := PlanBid(r)
	if plan.Action != domain.BidBuyNow || plan.MaxBid != 80 {
		t.Errorf("plan = %+v, want buy_now at 80", plan)
	}
}

func TestBidIncrement(t *testing.T) {
	cases := []struct {
		price float64
		want  float64
	}{
		{10, 5}, {49.99, 5}, {50, 10}, {199, 10}, {200, 25}, {499, 25}, {500, 50}, {2000, 50},
	}
	for _, tc := range cases {
		if got := BidIncrement(tc.price); got != tc.want {
			t.Errorf("BidIncrement(%.2f) = %.0f, want %.0f", tc.price, got, tc.want)
		}
	}
}

func TestEnqueueStage_Idempotent(t *testing.T) {
	f := newFlowFixture()
	f.queue.inFlight = true

	if err := f.flow.enqueueStage(context.Background(), domain.JobScoreCandidate, "res-1", 0); err != nil {
		t.Fatal(err)
	}
	if len(f.queue.enqueued) != 0 {
		t.Error("in-flight duplicate must not insert")
	}
}
