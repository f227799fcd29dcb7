package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/strategy"
)

type fakeProvider struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(context.Context, string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var out string
	if i < len(f.replies) {
		out = f.replies[i]
	}
	return out, err
}

func testContext() *strategy.Context {
	k := game.NewKnowledge()
	k.Sector(1).Warps[2] = true
	k.Sector(1).Warps[3] = true
	k.Sector(2).Warps[1] = true
	k.Sector(3).Warps[1] = true

	gs := game.NewGameState()
	gs.CurrentSector = 1
	gs.SectorConfirmed = true
	gs.Credits = 500
	gs.HoldsTotal = 20
	return &strategy.Context{State: gs, Know: k, Now: time.Now()}
}

func TestParseActionJSON(t *testing.T) {
	a, err := ParseAction(`Sure! Here is my move: {"action":"warp","target":12}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != strategy.ActWarp || a.Target != 12 {
		t.Fatalf("action = %+v", a)
	}
}

func TestParseActionJSONTrade(t *testing.T) {
	a, err := ParseAction(`{"action":"trade","side":"buy","commodity":"fuel","qty":20}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != strategy.ActTrade || a.Side != game.Buy || a.Commodity != game.Fuel || a.Qty != 20 {
		t.Fatalf("action = %+v", a)
	}
}

func TestParseActionRegexFallback(t *testing.T) {
	a, err := ParseAction("I think you should warp to sector 7 next.")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != strategy.ActWarp || a.Target != 7 {
		t.Fatalf("action = %+v", a)
	}

	a, err = ParseAction("sell your equipment, all 15 units")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != strategy.ActTrade || a.Side != game.Sell || a.Commodity != game.Equipment || a.Qty != 15 {
		t.Fatalf("action = %+v", a)
	}
}

func TestParseActionGarbage(t *testing.T) {
	if _, err := ParseAction("the weather in sector space is lovely"); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestValidateWarpAdjacency(t *testing.T) {
	sc := testContext()
	if err := ValidateAction(strategy.Action{Kind: strategy.ActWarp, Target: 2}, sc); err != nil {
		t.Fatalf("adjacent warp rejected: %v", err)
	}
	err := ValidateAction(strategy.Action{Kind: strategy.ActWarp, Target: 99}, sc)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestValidateTradeBounds(t *testing.T) {
	sc := testContext()
	err := ValidateAction(strategy.Action{
		Kind: strategy.ActTrade, Side: game.Buy, Commodity: game.Fuel, Qty: 0,
	}, sc)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("zero qty accepted: %v", err)
	}
	err = ValidateAction(strategy.Action{
		Kind: strategy.ActTrade, Side: game.Buy, Commodity: game.Fuel, Qty: 50,
	}, sc)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("over-holds qty accepted: %v", err)
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{
		errs:    []error{ErrConnection, ErrConnection, nil},
		replies: []string{"", "", "ok"},
	}
	c := NewClient(p, time.Second, 3, 0)
	out, err := c.Complete(context.Background(), "hi")
	if err != nil || out != "ok" {
		t.Fatalf("out = %q err = %v", out, err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestClientDoesNotRetryModelNotFound(t *testing.T) {
	p := &fakeProvider{errs: []error{ErrModelNotFound}}
	c := NewClient(p, time.Second, 3, 0)
	if _, err := c.Complete(context.Background(), "hi"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", p.calls)
	}
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"response":"{\"action\":\"scan\"}"}`))
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "test-model")
	out, err := o.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	a, err := ParseAction(out)
	if err != nil || a.Kind != strategy.ActScan {
		t.Fatalf("action = %+v err = %v", a, err)
	}
}

func TestOllamaModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "absent")
	if _, err := o.Complete(context.Background(), "p"); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"wait"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini("key", "gemini-pro")
	g.BaseURL = srv.URL
	out, err := g.Complete(context.Background(), "p")
	if err != nil || out != "wait" {
		t.Fatalf("out = %q err = %v", out, err)
	}
}

func TestAdapterDecide(t *testing.T) {
	p := &fakeProvider{replies: []string{`{"action":"warp","target":3}`}}
	ad := NewAdapter(NewClient(p, time.Second, 0, 0), DefaultAdapterConfig, nil)

	a, err := ad.Decide(testContext())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if a.Kind != strategy.ActWarp || a.Target != 3 || a.Reason != "llm" {
		t.Fatalf("action = %+v", a)
	}
}

func TestAdapterDecideRejectsNonAdjacent(t *testing.T) {
	p := &fakeProvider{replies: []string{`{"action":"warp","target":42}`}}
	ad := NewAdapter(NewClient(p, time.Second, 0, 0), DefaultAdapterConfig, nil)
	if _, err := ad.Decide(testContext()); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestBuildPromptBudget(t *testing.T) {
	sc := testContext()
	for i := 0; i < 200; i++ {
		sc.State.RecordAction("warp(2)", "success")
	}
	ad := NewAdapter(nil, AdapterConfig{Mode: ModeSummary, SectorRadius: 1, IncludeHistory: true, MaxHistoryItems: 100}, nil)
	p := ad.BuildPrompt(sc)
	if len(p) > summaryBudget {
		t.Errorf("prompt = %d chars, budget %d", len(p), summaryBudget)
	}
	if p == "" {
		t.Error("empty prompt")
	}
}

func TestIntervene(t *testing.T) {
	p := &fakeProvider{replies: []string{"I suggest: switch_to_exploration"}}
	ad := NewAdapter(NewClient(p, time.Second, 0, 0), DefaultAdapterConfig, nil)
	goal, err := ad.Intervene(testContext(), "disoriented")
	if err != nil || goal != "switch_to_exploration" {
		t.Fatalf("goal = %q err = %v", goal, err)
	}
}
