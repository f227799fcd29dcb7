// Package orchestrator sequences sends and reads over a session: typed input
// per prompt kind, prompt-gated waits, and automatic pagination.
package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/prompt"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/session"
	"github.com/ehrlich-b/tradewarden/internal/term"
)

var (
	// ErrPromptTimeout means no acceptable prompt appeared within the wait.
	ErrPromptTimeout = errors.New("orchestrator: prompt timeout")
	// ErrUnexpectedPrompt wraps a timeout where a different prompt than the
	// expected one kept matching.
	ErrUnexpectedPrompt = errors.New("orchestrator: unexpected prompt")
	// ErrPageCap means pagination auto-continue hit the pages-per-command cap.
	ErrPageCap = errors.New("orchestrator: pagination cap exceeded")
)

// DefaultPageCap bounds pagination auto-continue per command.
const DefaultPageCap = 20

// stableReads is how many consecutive identical hashes mean the screen has
// settled on something no rule recognizes.
const stableReads = 3

// idleBudget is the fraction of the timeout after which a detection against
// a non-idle snapshot is accepted anyway. Rapidly-updating screens would
// otherwise never be observed idle within the turn budget.
const idleBudget = 0.8

// Result is what a wait produced. Detection is nil for a stable-but-unknown
// screen.
type Result struct {
	Snap      *term.Snapshot
	Detection *prompt.Detection
	Pages     int
}

// Orchestrator drives one session through one detector.
type Orchestrator struct {
	sess    *session.Session
	det     *prompt.Detector
	rec     *record.Recorder
	pageCap int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPageCap overrides the pagination cap.
func WithPageCap(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageCap = n
		}
	}
}

func New(sess *session.Session, det *prompt.Detector, rec *record.Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{sess: sess, det: det, rec: rec, pageCap: DefaultPageCap}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendInput types keys according to the prompt's input kind. For multi_key
// the CR is a separate write from the payload; TWGS servers misread CR
// concatenated onto text.
func (o *Orchestrator) SendInput(keys string, kind prompt.InputKind) error {
	switch kind {
	case prompt.SingleKey:
		if keys == "" {
			return fmt.Errorf("orchestrator: single_key with empty keys")
		}
		return o.sess.Send([]byte(keys[:1]))
	case prompt.MultiKey:
		if keys != "" {
			if err := o.sess.Send([]byte(keys)); err != nil {
				return err
			}
		}
		return o.sess.Send([]byte("\r"))
	case prompt.AnyKey:
		return o.sess.Send([]byte(" "))
	case prompt.NoInput:
		return nil
	default:
		return fmt.Errorf("orchestrator: unknown input kind %q", kind)
	}
}

// WaitAndRespond reads until an acceptable prompt is detected. expectedID ""
// accepts any detection. Pagination prompts other than the expected one are
// auto-continued with a space, bounded by the page cap. Three consecutive
// reads with an unchanged hash return a nil Detection: the screen is stable
// but unrecognized, and the caller decides what that means.
func (o *Orchestrator) WaitAndRespond(expectedID string, timeout time.Duration) (*Result, error) {
	deadline := time.Now().Add(timeout)
	concession := time.Now().Add(time.Duration(float64(timeout) * idleBudget))

	var (
		lastHash    uint64
		sameHash    int
		pages       int
		lastWrongID string
	)

	for {
		rem := time.Until(deadline)
		if rem <= 0 {
			if lastWrongID != "" {
				return nil, fmt.Errorf("%w: kept seeing %q while waiting for %q",
					ErrUnexpectedPrompt, lastWrongID, expectedID)
			}
			return nil, fmt.Errorf("%w: no %q within %v", ErrPromptTimeout, expectedID, timeout)
		}
		step := 250 * time.Millisecond
		if rem < step {
			step = rem
		}

		snap, err := o.sess.Read(step)
		if err != nil {
			return nil, err
		}

		if snap.Hash == lastHash && lastHash != 0 {
			sameHash++
		} else {
			sameHash = 1
			lastHash = snap.Hash
		}

		det := o.det.Detect(snap)
		if det != nil {
			accept := snap.IsIdle || time.Now().After(concession)
			if !accept {
				continue
			}

			if det.IsPagination() && det.PromptID != expectedID {
				pages++
				if pages > o.pageCap {
					return nil, fmt.Errorf("%w: %d pages", ErrPageCap, pages)
				}
				if err := o.SendInput(" ", prompt.AnyKey); err != nil {
					return nil, err
				}
				lastHash, sameHash = 0, 0
				continue
			}

			if expectedID == "" || det.PromptID == expectedID {
				o.recordDetection(det, snap)
				return &Result{Snap: snap, Detection: det, Pages: pages}, nil
			}
			lastWrongID = det.PromptID
			continue
		}

		if sameHash >= stableReads && snap.IsIdle {
			return &Result{Snap: snap, Detection: nil, Pages: pages}, nil
		}
	}
}

// Respond answers a detected prompt with keys and waits for the next one.
func (o *Orchestrator) Respond(det *prompt.Detection, keys string, expectNext string, timeout time.Duration) (*Result, error) {
	if err := o.SendInput(keys, det.InputKind); err != nil {
		return nil, err
	}
	return o.WaitAndRespond(expectNext, timeout)
}

func (o *Orchestrator) recordDetection(det *prompt.Detection, snap *term.Snapshot) {
	if o.rec == nil {
		return
	}
	o.rec.Emit(record.KindPromptDetected, map[string]any{
		"prompt_id":  det.PromptID,
		"input_kind": string(det.InputKind),
		"kind":       string(det.Kind),
		"row":        det.MatchedRow,
		"hash":       snap.Hash,
	})
}

// Session exposes the underlying session for callers that need raw reads.
func (o *Orchestrator) Session() *session.Session { return o.sess }

// Detector exposes the detector, mostly for anchor-key recovery.
func (o *Orchestrator) Detector() *prompt.Detector { return o.det }
