package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
	"github.com/DebtanChowdhury1/QuantoraAI/internal/predictor"
)

type stubSnapshots struct {
	snap  *model.Snapshot
	err   error
	calls int
}

func (s *stubSnapshots) Snapshot(ctx context.Context, assetID string) (*model.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

type stubInference struct {
	result *predictor.Result
	err    error
	lastIn predictor.Input
}

func (s *stubInference) Predict(ctx context.Context, in predictor.Input) (*predictor.Result, error) {
	s.lastIn = in
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type memSignalStore struct {
	latest     *model.Prediction
	inserted   []*model.Prediction
	dispatched []int64
	nextID     int64
}

func (m *memSignalStore) InsertPrediction(p *model.Prediction) (int64, error) {
	m.nextID++
	m.inserted = append(m.inserted, p)
	return m.nextID, nil
}

func (m *memSignalStore) LatestPrediction(assetID string, kind model.SourceType) (*model.Prediction, error) {
	return m.latest, nil
}

func (m *memSignalStore) MarkDispatched(id int64, at time.Time) error {
	m.dispatched = append(m.dispatched, id)
	return nil
}

type stubDispatcher struct {
	sent  int
	calls int
	err   error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, p *model.Prediction, snap *model.Snapshot) (int, error) {
	d.calls++
	return d.sent, d.err
}

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		AssetID:   "bitcoin",
		Symbol:    "BTC",
		Name:      "Bitcoin",
		Price:     100,
		Change24h: 2.0,
		History: []model.PricePoint{
			{Timestamp: time.Unix(1, 0), Price: 90},
			{Timestamp: time.Unix(2, 0), Price: 100},
			{Timestamp: time.Unix(3, 0), Price: 110},
		},
		Source:      "test",
		LastUpdated: time.Now(),
	}
}

func newTestOrchestrator(snaps Snapshots, inf Inference, st SignalStore, d Dispatcher, opts Options) *Orchestrator {
	return New(snaps, inf, st, d, opts, zerolog.Nop())
}

func TestRun_InferenceSignalPersistedAndDispatched(t *testing.T) {
	snaps := &stubSnapshots{snap: testSnapshot()}
	inf := &stubInference{result: &predictor.Result{
		Action: "BUY", Confidence: 0.8, Reason: "Momentum rising", Raw: `{"action":"BUY"}`,
	}}
	st := &memSignalStore{}
	d := &stubDispatcher{sent: 2}

	o := newTestOrchestrator(snaps, inf, st, d, Options{PeriodDays: 7})
	out, err := o.Run(context.Background(), "bitcoin", true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.FallbackUsed || out.Reused {
		t.Errorf("unexpected flags: %+v", out)
	}
	if out.Prediction.Action != model.ActionBuy || out.Prediction.SourceType != model.SourceRaw {
		t.Errorf("unexpected prediction: %+v", out.Prediction)
	}
	if out.Prediction.RawResponse == "" {
		t.Error("raw response should be persisted for inference signals")
	}
	if out.Notified != 2 || d.calls != 1 {
		t.Errorf("dispatch mismatch: notified=%d calls=%d", out.Notified, d.calls)
	}
	if len(st.dispatched) != 1 || st.dispatched[0] != out.Prediction.ID {
		t.Errorf("dispatched ids: %v", st.dispatched)
	}
	// mean of 90,100,110 is 100; population stddev sqrt(200/3)=8.16 -> 8.16%
	if inf.lastIn.AveragePrice != 100 {
		t.Errorf("avg price = %v", inf.lastIn.AveragePrice)
	}
	if inf.lastIn.Volatility != 8.16 {
		t.Errorf("volatility = %v", inf.lastIn.Volatility)
	}
}

func TestRun_FallbackOnInferenceUnavailable(t *testing.T) {
	snaps := &stubSnapshots{snap: testSnapshot()}
	inf := &stubInference{err: &predictor.UnavailableError{Reason: "quota exhausted"}}
	st := &memSignalStore{}
	d := &stubDispatcher{sent: 1}

	o := newTestOrchestrator(snaps, inf, st, d, Options{PeriodDays: 7})
	out, err := o.Run(context.Background(), "bitcoin", true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.FallbackUsed {
		t.Fatal("expected fallback")
	}
	if out.Prediction.Action != model.ActionBuy {
		t.Errorf("heuristic action = %s", out.Prediction.Action)
	}
	if out.Prediction.RawResponse != "" {
		t.Error("fallback signals carry no raw response")
	}
	// Degraded signals are recorded but never alerted on.
	if d.calls != 0 || out.Notified != 0 {
		t.Errorf("fallback must not dispatch: calls=%d notified=%d", d.calls, out.Notified)
	}
	if len(st.inserted) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(st.inserted))
	}
}

func TestRun_NilInferenceAlwaysFallsBack(t *testing.T) {
	snaps := &stubSnapshots{snap: testSnapshot()}
	st := &memSignalStore{}

	o := newTestOrchestrator(snaps, nil, st, nil, Options{PeriodDays: 7})
	out, err := o.Run(context.Background(), "bitcoin", false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.FallbackUsed {
		t.Error("expected fallback without an inference client")
	}
}

func TestRun_OnChangeOnlySuppressesRepeatAction(t *testing.T) {
	snaps := &stubSnapshots{snap: testSnapshot()}
	inf := &stubInference{result: &predictor.Result{Action: "BUY", Confidence: 0.7, Reason: "Still rising"}}
	st := &memSignalStore{latest: &model.Prediction{
		AssetID: "bitcoin", Action: model.ActionBuy,
		SourceType: model.SourceRaw, CreatedAt: time.Now().Add(-time.Hour),
	}}
	d := &stubDispatcher{sent: 1}

	o := newTestOrchestrator(snaps, inf, st, d, Options{PeriodDays: 7, OnChangeOnly: true})
	out, err := o.Run(context.Background(), "bitcoin", true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.calls != 0 || out.Notified != 0 {
		t.Errorf("repeat action should not alert: calls=%d", d.calls)
	}

	// A different action goes through.
	inf.result = &predictor.Result{Action: "SELL", Confidence: 0.7, Reason: "Reversal"}
	out, err = o.Run(context.Background(), "bitcoin", true)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if d.calls != 1 || out.Notified != 1 {
		t.Errorf("changed action should alert: calls=%d notified=%d", d.calls, out.Notified)
	}
}

func TestRun_ReuseShortCircuit(t *testing.T) {
	recent := &model.Prediction{
		ID: 42, AssetID: "bitcoin", Action: model.ActionHold,
		SourceType: model.SourceRaw, CreatedAt: time.Now().Add(-time.Minute),
	}
	snaps := &stubSnapshots{snap: testSnapshot()}
	st := &memSignalStore{latest: recent}

	o := newTestOrchestrator(snaps, nil, st, nil, Options{PeriodDays: 7, ReuseWindow: 10 * time.Minute})
	out, err := o.Run(context.Background(), "bitcoin", false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Reused || out.Prediction.ID != 42 {
		t.Errorf("expected reuse of record 42: %+v", out)
	}
	if snaps.calls != 0 {
		t.Error("reuse must not touch providers")
	}

	// Notifying runs never reuse.
	out, err = o.Run(context.Background(), "bitcoin", true)
	if err != nil {
		t.Fatalf("notify run: %v", err)
	}
	if out.Reused || snaps.calls != 1 {
		t.Errorf("notify run should refresh: %+v calls=%d", out, snaps.calls)
	}
}

func TestRun_SnapshotFailurePropagates(t *testing.T) {
	wantErr := errors.New("all providers down")
	snaps := &stubSnapshots{err: wantErr}
	st := &memSignalStore{}

	o := newTestOrchestrator(snaps, nil, st, nil, Options{PeriodDays: 7})
	_, err := o.Run(context.Background(), "bitcoin", false)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if len(st.inserted) != 0 {
		t.Error("nothing should be persisted without a snapshot")
	}
}
