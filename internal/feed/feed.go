// Package feed collects items from virtualized, infinite-scrolling lists.
//
// Such feeds expose no reliable total, so collection stops on whichever
// comes first: a run of rounds that surface nothing new, a hard round cap,
// an item cap, a wall-clock cap or a visible end-of-list marker.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/browser"
)

// StopReason says why a collection ended.
type StopReason string

// Stop reasons.
const (
	StopNoContainer StopReason = "no_container"
	StopStalled     StopReason = "stalled"
	StopMaxRounds   StopReason = "max_rounds"
	StopLimit       StopReason = "limit"
	StopEndOfList   StopReason = "end_of_list"
	StopTimeLimit   StopReason = "time_limit"
	StopError       StopReason = "error"
)

// Spec describes one feed and how to turn its rendered nodes into items.
type Spec[T any] struct {
	// Ready is waited for before collecting. Defaults to Container.
	Ready string
	// ReadyTimeout bounds the wait for Ready.
	ReadyTimeout time.Duration
	// Container is the element whose markup is snapshotted each round.
	Container string
	// Item selects item nodes inside the container snapshot.
	Item string
	// ScrollTarget is the element scrolled between rounds. Defaults to Container.
	ScrollTarget string
	// Expand, when set, is clicked on every match before each snapshot
	// (e.g. "More" buttons on truncated text).
	Expand string
	// EndMarker, when visible, ends the collection.
	EndMarker string

	// Parse extracts an item; ok=false skips the node.
	Parse func(*goquery.Selection) (T, bool)
	// Key identifies an item across rounds.
	Key func(T) string
	// Accept filters parsed items. Nil accepts everything.
	Accept func(T) bool
	// OnItem observes every newly seen item with its accept verdict.
	OnItem func(item T, accepted bool)

	Limit       int
	StallRounds int
	MaxRounds   int
	ScrollDelta int
	Settle      time.Duration
	MaxDuration time.Duration
}

// Outcome is the result of a collection. Items keep first-seen order.
type Outcome[T any] struct {
	Items  []T
	Seen   int
	Rounds int
	Reason StopReason
	Err    error
}

func (s *Spec[T]) defaults() {
	if s.Ready == "" {
		s.Ready = s.Container
	}
	if s.ScrollTarget == "" {
		s.ScrollTarget = s.Container
	}
	if s.ReadyTimeout <= 0 {
		s.ReadyTimeout = 5 * time.Second
	}
	if s.StallRounds <= 0 {
		s.StallRounds = 5
	}
	if s.MaxRounds <= 0 {
		s.MaxRounds = 20
	}
	if s.ScrollDelta <= 0 {
		s.ScrollDelta = 3000
	}
}

// Collect runs the scroll loop over page. Failures end the collection with
// whatever was gathered; they are reported in Outcome.Err, never returned.
func Collect[T any](ctx context.Context, page browser.Page, spec Spec[T]) Outcome[T] {
	spec.defaults()
	out := Outcome[T]{}

	ok, err := page.WaitFor(ctx, spec.Ready, spec.ReadyTimeout)
	if err != nil {
		out.Reason, out.Err = StopError, err
		return out
	}
	if !ok {
		out.Reason = StopNoContainer
		return out
	}

	seen := make(map[string]struct{})
	stalled := 0
	var deadline time.Time
	if spec.MaxDuration > 0 {
		deadline = time.Now().Add(spec.MaxDuration)
	}

	for {
		out.Rounds++

		fresh, err := snapshot(ctx, page, &spec, seen, &out)
		if err != nil {
			out.Reason, out.Err = StopError, err
			return out
		}

		switch {
		case spec.Limit > 0 && len(out.Items) >= spec.Limit:
			out.Items = out.Items[:spec.Limit]
			out.Reason = StopLimit
			return out
		case fresh == 0:
			stalled++
		default:
			stalled = 0
		}

		if stalled >= spec.StallRounds {
			out.Reason = StopStalled
			return out
		}
		if out.Rounds >= spec.MaxRounds {
			out.Reason = StopMaxRounds
			return out
		}
		if spec.EndMarker != "" {
			if end, _ := page.Exists(ctx, spec.EndMarker); end {
				out.Reason = StopEndOfList
				return out
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			out.Reason = StopTimeLimit
			return out
		}

		if _, err := page.ScrollBy(ctx, spec.ScrollTarget, spec.ScrollDelta); err != nil {
			out.Reason, out.Err = StopError, err
			return out
		}
		if spec.Settle > 0 {
			time.Sleep(spec.Settle)
		}
	}
}

// snapshot parses the container once and appends new accepted items. It
// returns how many identity keys were seen for the first time.
func snapshot[T any](ctx context.Context, page browser.Page, spec *Spec[T], seen map[string]struct{}, out *Outcome[T]) (int, error) {
	if spec.Expand != "" {
		if _, err := page.ClickAll(ctx, spec.Expand); err != nil {
			zap.L().Debug("feed: expand failed", zap.String("selector", spec.Expand), zap.Error(err))
		}
	}

	html, ok, err := page.OuterHTML(ctx, spec.Container)
	if err != nil {
		return 0, err
	}
	if !ok {
		// The container vanished mid-scroll; treat as an empty round.
		return 0, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, eris.Wrap(err, "feed: parse snapshot")
	}

	fresh := 0
	doc.Find(spec.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		item, ok := spec.Parse(s)
		if !ok {
			return true
		}
		key := spec.Key(item)
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		fresh++
		out.Seen++

		accepted := spec.Accept == nil || spec.Accept(item)
		if spec.OnItem != nil {
			spec.OnItem(item, accepted)
		}
		if accepted {
			out.Items = append(out.Items, item)
		}
		return spec.Limit <= 0 || len(out.Items) < spec.Limit
	})
	return fresh, nil
}
