package patrol

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/price-patrol/internal/extract"
	"github.com/sells-group/price-patrol/internal/fetch"
	"github.com/sells-group/price-patrol/internal/model"
	"github.com/sells-group/price-patrol/internal/reconcile"
	"github.com/sells-group/price-patrol/internal/store"
	"github.com/sells-group/price-patrol/internal/validate"
)

type attrWrite struct {
	productID string
	verdict   *model.Verdict
}

type trackingWrite struct {
	sourceID  string
	price     *float64
	checkedAt time.Time
}

// stubStore records writes and lets individual operations be forced to
// fail. Methods the patrol package never touches return zero values.
type stubStore struct {
	mu sync.Mutex

	workItems []model.WorkItem
	workErr   error

	createProductErr error
	linkErr          error
	updateAttrsErr   error
	trackingErr      error
	appendErr        error
	getSourceFn      func(id string) (*model.ProductSource, error)
	createRunErr     error
	recordFailureErr error

	createdProducts []model.Product
	linked          [][2]string
	attrWrites      []attrWrite
	trackingWrites  []trackingWrite
	pricePoints     []model.PricePoint
	createdRuns     []model.PatrolRun
	finishedRuns    []model.PatrolRun
	failures        []model.FailureRecord
}

var _ store.Store = (*stubStore)(nil)

func (s *stubStore) WorkList(_ context.Context, _ store.WorkFilter) ([]model.WorkItem, error) {
	return s.workItems, s.workErr
}

func (s *stubStore) CreateProduct(_ context.Context, p model.Product) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createProductErr != nil {
		return nil, s.createProductErr
	}
	p.ID = fmt.Sprintf("prod-%d", len(s.createdProducts)+1)
	s.createdProducts = append(s.createdProducts, p)
	return &p, nil
}

func (s *stubStore) GetProduct(_ context.Context, _ string) (*model.Product, error) {
	return nil, nil
}

func (s *stubStore) ListProducts(_ context.Context, _ store.ProductFilter) ([]model.Product, error) {
	return nil, nil
}

func (s *stubStore) UpdateProductAttributes(_ context.Context, productID string, v *model.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateAttrsErr != nil {
		return s.updateAttrsErr
	}
	s.attrWrites = append(s.attrWrites, attrWrite{productID: productID, verdict: v})
	return nil
}

func (s *stubStore) CreateSource(_ context.Context, src model.ProductSource) (*model.ProductSource, error) {
	return &src, nil
}

func (s *stubStore) GetSource(_ context.Context, id string) (*model.ProductSource, error) {
	if s.getSourceFn != nil {
		return s.getSourceFn(id)
	}
	return nil, nil
}

func (s *stubStore) ListSources(_ context.Context, _ store.SourceFilter) ([]model.ProductSource, error) {
	return nil, nil
}

func (s *stubStore) LinkSource(_ context.Context, sourceID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return s.linkErr
	}
	s.linked = append(s.linked, [2]string{sourceID, productID})
	return nil
}

func (s *stubStore) UpdateSourceTracking(_ context.Context, sourceID string, price *float64, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackingErr != nil {
		return s.trackingErr
	}
	s.trackingWrites = append(s.trackingWrites, trackingWrite{sourceID: sourceID, price: price, checkedAt: checkedAt})
	return nil
}

func (s *stubStore) UpsertFeedSources(_ context.Context, _ []model.FeedRow) (int64, error) {
	return 0, nil
}

func (s *stubStore) AppendPricePoint(_ context.Context, pp model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.pricePoints = append(s.pricePoints, pp)
	return nil
}

func (s *stubStore) PriceHistory(_ context.Context, _ string, _ int) ([]model.PricePoint, error) {
	return nil, nil
}

func (s *stubStore) CreateRun(_ context.Context, run model.PatrolRun) (*model.PatrolRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createRunErr != nil {
		return nil, s.createRunErr
	}
	run.ID = fmt.Sprintf("run-%d", len(s.createdRuns)+1)
	run.Status = model.RunStatusRunning
	s.createdRuns = append(s.createdRuns, run)
	return &run, nil
}

func (s *stubStore) FinishRun(_ context.Context, run *model.PatrolRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedRuns = append(s.finishedRuns, *run)
	return nil
}

func (s *stubStore) GetRun(_ context.Context, _ string) (*model.PatrolRun, error) {
	return nil, nil
}

func (s *stubStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.PatrolRun, error) {
	return nil, nil
}

func (s *stubStore) RecordFailure(_ context.Context, f model.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordFailureErr != nil {
		return s.recordFailureErr
	}
	s.failures = append(s.failures, f)
	return nil
}

func (s *stubStore) ListFailures(_ context.Context, _ string) ([]model.FailureRecord, error) {
	return nil, nil
}

func (s *stubStore) RecordFeedSync(_ context.Context, _ model.FeedSync) error { return nil }

func (s *stubStore) Stats(_ context.Context) (*store.Stats, error) { return &store.Stats{}, nil }

func (s *stubStore) Migrate(_ context.Context) error { return nil }

func (s *stubStore) Close() error { return nil }

type stubFetcher struct {
	mu    sync.Mutex
	html  string
	part  bool
	err   error
	calls int
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{URL: url, HTML: f.html, Partial: f.part, Source: f.Name()}, nil
}

const productHTML = `<html><head>
<title>Trailblazer Winch 4500 | Demo Retailer</title>
<script type="application/ld+json">{
  "@type": "Product",
  "name": "Trailblazer Winch 4500",
  "description": "Heavy duty electric winch rated for 4500 pounds with synthetic rope and a wireless remote included.",
  "offers": {"@type": "Offer", "price": "199.99", "priceCurrency": "USD"}
}</script>
<meta property="product:price:amount" content="199.99">
</head><body><h1>Trailblazer Winch 4500</h1><span class="price">$199.99</span></body></html>`

const pricelessHTML = `<html><head><title>Trailblazer Winch 4500</title></head>
<body><h1>Trailblazer Winch 4500</h1><p>Call for availability.</p></body></html>`

func testWorker(st *stubStore, f *stubFetcher) *Worker {
	court := reconcile.NewCourt(5.00, 50000.00, validate.New(30, nil))
	extractors := []extract.Extractor{
		extract.NewStructuredExtractor(),
		extract.NewMetaExtractor(),
		extract.NewFocusedTextExtractor(5.00, 50000.00),
		extract.NewBroadTextExtractor(5.00, 50000.00),
	}
	return NewWorker(st, f, extractors, nil, court, WorkerConfig{})
}

func TestProcessDiscoveryRepairsAndPersists(t *testing.T) {
	t.Parallel()

	st := &stubStore{}
	f := &stubFetcher{html: productHTML}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", URL: "https://shop.example/winch"}
	out := w.Process(context.Background(), item, "run-1")

	require.NoError(t, out.Err)
	assert.Equal(t, model.StageDone, out.Stage)
	assert.True(t, out.Repaired)
	assert.Equal(t, "prod-1", out.Item.ProductID, "repaired product id flows into the outcome")

	require.Len(t, st.createdProducts, 1)
	assert.Equal(t, "Untracked product src-1", st.createdProducts[0].Name)
	require.Len(t, st.linked, 1)
	assert.Equal(t, [2]string{"src-1", "prod-1"}, st.linked[0])

	require.True(t, out.Verdict.HasPrice())
	assert.InDelta(t, 199.99, *out.Verdict.Price, 0.001)
	assert.Equal(t, "Trailblazer Winch 4500", out.Verdict.Name)

	require.Len(t, st.attrWrites, 1)
	assert.Equal(t, "prod-1", st.attrWrites[0].productID)
	require.Len(t, st.trackingWrites, 1)
	require.NotNil(t, st.trackingWrites[0].price)
	assert.InDelta(t, 199.99, *st.trackingWrites[0].price, 0.001)
	require.Len(t, st.pricePoints, 1)
	assert.Equal(t, "run-1", st.pricePoints[0].RunID)
	assert.Equal(t, "prod-1", st.pricePoints[0].ProductID)
}

func TestProcessFetchFailureWritesNothing(t *testing.T) {
	t.Parallel()

	st := &stubStore{}
	f := &stubFetcher{err: eris.New("browser crashed")}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", ProductID: "prod-9", URL: "https://shop.example/x", KnownAttributes: true}
	out := w.Process(context.Background(), item, "run-1")

	assert.Equal(t, model.StageFailed, out.Stage)
	assert.Equal(t, model.StageFetching, out.FailedAt)
	require.Error(t, out.Err)
	assert.Empty(t, st.trackingWrites)
	assert.Empty(t, st.pricePoints)
	assert.Empty(t, st.attrWrites)
}

func TestProcessRepairFailureSkipsFetch(t *testing.T) {
	t.Parallel()

	st := &stubStore{createProductErr: eris.New("db down")}
	f := &stubFetcher{html: productHTML}
	w := testWorker(st, f)

	out := w.Process(context.Background(), model.WorkItem{SourceID: "src-1", URL: "https://shop.example/x"}, "run-1")

	assert.Equal(t, model.StageFailed, out.Stage)
	assert.Equal(t, model.StagePersisting, out.FailedAt)
	assert.Equal(t, 0, f.calls, "no network spend on an item that cannot be linked")
}

func TestProcessPatrolNoPriceStillAdvancesTracking(t *testing.T) {
	t.Parallel()

	st := &stubStore{}
	f := &stubFetcher{html: pricelessHTML}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", ProductID: "prod-9", URL: "https://shop.example/x", KnownAttributes: true}
	out := w.Process(context.Background(), item, "run-1")

	require.NoError(t, out.Err)
	assert.Equal(t, model.StageDone, out.Stage)
	assert.False(t, out.Verdict.HasPrice())

	require.Len(t, st.trackingWrites, 1)
	assert.Nil(t, st.trackingWrites[0].price, "a priceless visit still moves last_checked")
	assert.Empty(t, st.pricePoints)
	assert.Empty(t, st.attrWrites, "patrol mode never rewrites attributes")
}

func TestProcessPartialContentStillExtracts(t *testing.T) {
	t.Parallel()

	st := &stubStore{}
	f := &stubFetcher{html: productHTML, part: true}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", ProductID: "prod-9", URL: "https://shop.example/x", KnownAttributes: true}
	out := w.Process(context.Background(), item, "run-1")

	require.NoError(t, out.Err)
	assert.Equal(t, model.StageDone, out.Stage)
	assert.True(t, out.Verdict.HasPrice())
}

func TestProcessPartialWriteFailureTolerated(t *testing.T) {
	t.Parallel()

	st := &stubStore{updateAttrsErr: eris.New("constraint violation")}
	f := &stubFetcher{html: productHTML}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", ProductID: "prod-9", URL: "https://shop.example/x"}
	out := w.Process(context.Background(), item, "run-1")

	require.NoError(t, out.Err, "one failed write out of three does not fail the item")
	assert.Equal(t, model.StageDone, out.Stage)
	require.Len(t, st.trackingWrites, 1)
	require.Len(t, st.pricePoints, 1)
}

func TestProcessAllWritesFailedFailsItem(t *testing.T) {
	t.Parallel()

	st := &stubStore{
		trackingErr: eris.New("db down"),
		appendErr:   eris.New("db down"),
	}
	f := &stubFetcher{html: productHTML}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", ProductID: "prod-9", URL: "https://shop.example/x", KnownAttributes: true}
	out := w.Process(context.Background(), item, "run-1")

	assert.Equal(t, model.StageFailed, out.Stage)
	assert.Equal(t, model.StagePersisting, out.FailedAt)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "every persistence write failed")
}

func TestProcessCapturesPriorPriceForDropDetection(t *testing.T) {
	t.Parallel()

	prev := 249.99
	st := &stubStore{
		getSourceFn: func(id string) (*model.ProductSource, error) {
			return &model.ProductSource{ID: id, ProductID: "prod-9", LastPrice: &prev, Active: true}, nil
		},
	}
	f := &stubFetcher{html: productHTML}
	w := testWorker(st, f)

	item := model.WorkItem{SourceID: "src-1", ProductID: "prod-9", URL: "https://shop.example/x", KnownAttributes: true}
	out := w.Process(context.Background(), item, "run-1")

	require.NoError(t, out.Err)
	require.NotNil(t, out.PrevPrice)
	assert.InDelta(t, 249.99, *out.PrevPrice, 0.001)
	require.True(t, out.Verdict.HasPrice())
	assert.InDelta(t, 199.99, *out.Verdict.Price, 0.001)
}
