package locator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/driver/mock"
	"github.com/devicelab-dev/harness/pkg/metrics"
)

func TestResolve_FirstStrategyWins(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(Role("button", "Login").Query(), &mock.Element{ID: "by-role"})
	d.Set(CSS("#login-button").Query(), &mock.Element{ID: "by-css"})

	r := NewResolver(d, Options{})
	res, err := r.Resolve(context.Background(), NewChain(Role("button", "Login"), CSS("#login-button")), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Handle.Describe() != "mock:by-role" {
		t.Errorf("Handle = %s, want mock:by-role", res.Handle.Describe())
	}
	if len(res.Tried) != 0 {
		t.Errorf("Tried = %v, want none", res.Tried)
	}
	if d.FindCalls() != 1 {
		t.Errorf("FindCalls() = %d, want 1", d.FindCalls())
	}
}

func TestResolve_FallsBackAndRetainsEarlierErrors(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(CSS("#login-button").Query(), &mock.Element{ID: "by-css"})

	role := Role("button", "Login")
	r := NewResolver(d, Options{Timeout: time.Second})
	res, err := r.Resolve(context.Background(), NewChain(role, CSS("#login-button")), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Handle.Describe() != "mock:by-css" {
		t.Errorf("Handle = %s, want mock:by-css", res.Handle.Describe())
	}
	if res.Reference.Kind() != core.QuerySelector {
		t.Errorf("Reference = %s, want the raw selector", res.Reference)
	}
	if len(res.Tried) != 1 || res.Tried[0].Strategy != role.String() {
		t.Fatalf("Tried = %v, want the role strategy", res.Tried)
	}
	if !errors.Is(res.Tried[0].Err, core.ErrElementNotFound) {
		t.Errorf("Tried[0].Err = %v, want element_not_found", res.Tried[0].Err)
	}
	var ee *core.ExecutionError
	if !errors.As(res.Tried[0].Err, &ee) {
		t.Fatalf("Tried[0].Err = %T, want *core.ExecutionError", res.Tried[0].Err)
	}
	if ee.Details["strategy"] != role.String() || ee.Details["candidates"] != 0 {
		t.Errorf("Details = %v, want the strategy and zero candidates", ee.Details)
	}
	if res.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1: fallbacks must not wait out the window", res.Rounds)
	}
}

func TestResolve_AllFail(t *testing.T) {
	d := mock.New(mock.Config{})
	r := NewResolver(d, Options{Timeout: 30 * time.Millisecond, PollInterval: 10 * time.Millisecond})

	_, err := r.Resolve(context.Background(), NewChain(Label("Username"), CSS("#user-name")), nil)

	var resErr *core.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error = %T %v, want *core.ResolutionError", err, err)
	}
	if len(resErr.Tried) != 2 {
		t.Errorf("len(Tried) = %d, want 2", len(resErr.Tried))
	}
	if resErr.Waited < 30*time.Millisecond {
		t.Errorf("Waited = %s, want at least the timeout", resErr.Waited)
	}
	if d.FindCalls() < 4 {
		t.Errorf("FindCalls() = %d, want several polling rounds", d.FindCalls())
	}
}

func TestResolve_AppearsWhilePolling(t *testing.T) {
	d := mock.New(mock.Config{})
	d.OnFind = func(_ context.Context, _ core.Query, _ core.Handle, call int) ([]core.Handle, error) {
		if call < 3 {
			return nil, nil
		}
		return []core.Handle{&mock.Element{ID: "late"}}, nil
	}

	r := NewResolver(d, Options{Timeout: time.Second, PollInterval: 5 * time.Millisecond})
	res, err := r.Resolve(context.Background(), NewChain(TestID("inventory")), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", res.Rounds)
	}
}

func TestResolve_StrictAmbiguity(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(CSS(".inventory_item").Query(), &mock.Element{ID: "a"}, &mock.Element{ID: "b"})

	chain := NewChain(CSS(".inventory_item"))
	_, err := NewResolver(d, Options{}).Resolve(context.Background(), chain, nil)

	var amb *core.AmbiguousMatchError
	if !errors.As(err, &amb) {
		t.Fatalf("error = %T %v, want *core.AmbiguousMatchError", err, err)
	}
	if amb.Count != 2 || amb.Strategy != "css=.inventory_item" {
		t.Errorf("AmbiguousMatchError = %+v", amb)
	}

	res, err := NewResolver(d, Options{FirstMatch: true}).Resolve(context.Background(), chain, nil)
	if err != nil {
		t.Fatalf("FirstMatch Resolve() error = %v", err)
	}
	if res.Handle.Describe() != "mock:a" {
		t.Errorf("Handle = %s, want the first candidate", res.Handle.Describe())
	}
}

func TestResolve_AmbiguityTakesPrecedence(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(Text("Add to cart").Query(), &mock.Element{ID: "a"}, &mock.Element{ID: "b"})

	_, err := NewResolver(d, Options{}).Resolve(context.Background(), NewChain(Text("Add to cart"), CSS("#missing")), nil)

	var amb *core.AmbiguousMatchError
	if !errors.As(err, &amb) {
		t.Fatalf("error = %v, want ambiguity", err)
	}
	if len(amb.Tried) != 2 || !errors.Is(err, core.ErrElementNotFound) {
		t.Errorf("ambiguity should still carry the not-found strategy: %v", amb.Tried)
	}
}

func TestResolve_AmbiguousStrategyFallsBack(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(Text("Add to cart").Query(), &mock.Element{ID: "a"}, &mock.Element{ID: "b"})
	d.Set(TestID("add-to-cart-backpack").Query(), &mock.Element{ID: "backpack"})

	res, err := NewResolver(d, Options{}).Resolve(context.Background(),
		NewChain(Text("Add to cart"), TestID("add-to-cart-backpack")), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Handle.Describe() != "mock:backpack" {
		t.Errorf("Handle = %s", res.Handle.Describe())
	}
	var ee *core.ExecutionError
	if errors.As(res.Tried[0].Err, &ee) && ee.Details["candidates"] != 2 {
		t.Errorf("Details = %v, want candidates 2", ee.Details)
	}
	if !errors.Is(res.Tried[0].Err, core.ErrAmbiguousMatch) {
		t.Errorf("Tried[0] = %v", res.Tried[0])
	}
}

func TestResolve_PermanentDriverErrorStopsPolling(t *testing.T) {
	d := mock.New(mock.Config{})
	d.OnFind = func(context.Context, core.Query, core.Handle, int) ([]core.Handle, error) {
		return nil, core.ErrTargetClosed
	}

	start := time.Now()
	_, err := NewResolver(d, Options{Timeout: 5 * time.Second}).Resolve(context.Background(), NewChain(CSS("#a")), nil)
	if !errors.Is(err, core.ErrTargetClosed) {
		t.Fatalf("error = %v, want target_closed in chain", err)
	}
	if time.Since(start) > time.Second {
		t.Error("resolver kept polling after a permanent error")
	}
	if d.FindCalls() != 1 {
		t.Errorf("FindCalls() = %d, want 1", d.FindCalls())
	}
}

func TestResolve_Cancelled(t *testing.T) {
	d := mock.New(mock.Config{})
	r := NewResolver(d, Options{Timeout: 5 * time.Second, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, NewChain(CSS("#never")), nil)
	var ce *core.CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T %v, want *core.CancelledError", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded cause", err)
	}
}

func TestResolve_EmptyChain(t *testing.T) {
	_, err := NewResolver(mock.New(mock.Config{}), Options{}).Resolve(context.Background(), nil, nil)
	if !errors.Is(err, core.ErrMissingRequired) {
		t.Errorf("error = %v, want missing_required", err)
	}
}

func TestResolve_RecordsMetrics(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(CSS("#ok").Query(), &mock.Element{ID: "ok"})
	reg := prometheus.NewRegistry()

	r := NewResolver(d, Options{}, WithMetrics(metrics.New(reg)))
	if _, err := r.Resolve(context.Background(), NewChain(Label("missing"), CSS("#ok")), nil); err != nil {
		t.Fatal(err)
	}

	n, err := testutil.GatherAndCount(reg, "harness_resolutions_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("resolution series = %d, want 2 (label not_found, css resolved)", n)
	}
}

func TestCount(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Set(CSS(".inventory_item").Query(), &mock.Element{}, &mock.Element{}, &mock.Element{})

	n, err := NewResolver(d, Options{}).Count(context.Background(), CSS(".inventory_item"), nil)
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3", n, err)
	}
}
