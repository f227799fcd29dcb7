package strategy

// RouteProvider hands out a precomputed action script, typically generated
// offline by an external route optimizer. The strategy treats it as opaque.
type RouteProvider interface {
	// Next returns the next scripted action; ok is false when the route is
	// exhausted.
	Next() (Action, bool)
	// Rewind restarts the route from the top.
	Rewind()
}

// SliceRoute is the trivial in-memory RouteProvider.
type SliceRoute struct {
	Actions []Action
	pos     int
}

func (r *SliceRoute) Next() (Action, bool) {
	if r.pos >= len(r.Actions) {
		return Action{}, false
	}
	a := r.Actions[r.pos]
	r.pos++
	return a, true
}

func (r *SliceRoute) Rewind() { r.pos = 0 }

// RouteRunner executes a precomputed route deterministically. When Loop is
// set an exhausted route rewinds; otherwise the strategy quits.
type RouteRunner struct {
	Route RouteProvider
	Loop  bool
}

func NewRouteRunner(route RouteProvider, loop bool) *RouteRunner {
	return &RouteRunner{Route: route, Loop: loop}
}

func (r *RouteRunner) Name() string { return "twerk_optimized" }

func (r *RouteRunner) Decide(sc *Context) (Action, error) {
	a, ok := r.Route.Next()
	if !ok {
		if !r.Loop {
			return Action{Kind: ActQuit, Reason: "route_exhausted"}, nil
		}
		r.Route.Rewind()
		a, ok = r.Route.Next()
		if !ok {
			return Action{}, ErrNoDecision
		}
	}
	if a.Reason == "" {
		a.Reason = "scripted"
	}
	return a, nil
}

func (r *RouteRunner) OnOutcome(Action, string) {}
