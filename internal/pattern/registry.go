package pattern

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"example.com/candle-confluence/internal/indicator"
	"example.com/candle-confluence/internal/kline"
)

// ErrUnknownPattern is returned for names missing from the registry.
var ErrUnknownPattern = errors.New("unknown pattern")

// Predicate tests a single pattern at a window anchor.
type Predicate interface {
	Name() PatternType
	// Lookback is the number of prior bars the predicate reads.
	Lookback() int
	// Rounded reports whether prices are rounded before matching so that
	// equality tests tolerate float noise.
	Rounded() bool
	Match(w Window) Direction
}

type rule struct {
	name     PatternType
	lookback int
	rounded  bool
	match    func(Window) Direction
}

func (r rule) Name() PatternType        { return r.name }
func (r rule) Lookback() int            { return r.lookback }
func (r rule) Rounded() bool            { return r.rounded }
func (r rule) Match(w Window) Direction { return r.match(w) }

var registry = []Predicate{
	rule{PatternMarubozu, 0, false, matchMarubozu},
	rule{PatternThreeCandles, 3, false, matchThreeCandles},
	rule{PatternThreeMethods, 4, false, matchThreeMethods},
	rule{PatternTasuki, 2, false, matchTasuki},
	rule{PatternHikkake, 4, false, matchHikkake},
	rule{PatternQuintuplets, 4, false, matchQuintuplets},

	rule{PatternDoji, 2, false, matchDoji},
	rule{PatternHarami, 2, false, matchHarami},
	rule{PatternTweezers, 2, true, matchTweezers},
	rule{PatternStickSandwich, 3, false, matchStickSandwich},
	rule{PatternHammer, 2, false, matchHammer},
	rule{PatternStar, 2, false, matchStar},
	rule{PatternPiercing, 2, false, matchPiercing},
	rule{PatternEngulfing, 2, false, matchEngulfing},
	rule{PatternAbandonedBaby, 2, false, matchAbandonedBaby},
	rule{PatternSpinningTop, 2, false, matchSpinningTop},
	rule{PatternInsideUpDown, 2, false, matchInsideUpDown},
	rule{PatternTower, 4, false, matchTower},
	rule{PatternOnNeck, 1, true, matchOnNeck},

	rule{PatternDoubleTrouble, 1, false, matchDoubleTrouble},
	rule{PatternBottle, 1, false, matchBottle},
	rule{PatternSlingshot, 3, false, matchSlingshot},
	rule{PatternHPattern, 2, false, matchHPattern},

	rule{PatternDoppelganger, 2, true, matchDoppelganger},
	rule{PatternBlockade, 3, false, matchBlockade},
	rule{PatternBarrier, 2, true, matchBarrier},
	rule{PatternMirror, 3, true, matchMirror},
	rule{PatternShrinking, 4, true, matchShrinking},
}

var byName = func() map[PatternType]Predicate {
	m := make(map[PatternType]Predicate, len(registry))
	for _, p := range registry {
		m[p.Name()] = p
	}
	return m
}()

// Predicates returns the registered predicates in catalogue order.
func Predicates() []Predicate {
	out := make([]Predicate, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the predicate registered under name.
func Lookup(name PatternType) (Predicate, bool) {
	p, ok := byName[name]
	return p, ok
}

// Validate rejects negative tolerances and a non-positive ATR period.
func (t Thresholds) Validate() error {
	switch {
	case t.Body < 0, t.ThreeCandlesBody < 0, t.HammerWick < 0, t.SpinningTopWick < 0:
		return fmt.Errorf("%w: negative pattern tolerance", indicator.ErrInvalidParameter)
	case t.ATRPeriod <= 0:
		return fmt.Errorf("%w: atr_period=%d", indicator.ErrInvalidParameter, t.ATRPeriod)
	case t.RoundDecimals < 0:
		return fmt.Errorf("%w: round_decimals=%d", indicator.ErrInvalidParameter, t.RoundDecimals)
	}
	return nil
}

// Result holds per-pattern boolean columns and the detections behind them.
type Result struct {
	Len     int
	Bullish map[PatternType][]bool
	Bearish map[PatternType][]bool
	// Events are ordered by detection bar, then catalogue order.
	Events []Event
}

// Column returns the "<pattern>_bullish" or "<pattern>_bearish" column.
func (r *Result) Column(name string) ([]bool, bool) {
	if p, ok := strings.CutSuffix(name, "_bullish"); ok {
		col, found := r.Bullish[PatternType(p)]
		return col, found
	}
	if p, ok := strings.CutSuffix(name, "_bearish"); ok {
		col, found := r.Bearish[PatternType(p)]
		return col, found
	}
	return nil, false
}

// EventsAt returns the detections anchored at bar i.
func (r *Result) EventsAt(i int) []Event {
	lo := sort.Search(len(r.Events), func(k int) bool { return r.Events[k].Index >= i })
	hi := lo
	for hi < len(r.Events) && r.Events[hi].Index == i {
		hi++
	}
	return r.Events[lo:hi]
}

type frame struct {
	raw, rounded Window
}

func newFrame(cols kline.Columns, atr []float64, th Thresholds) frame {
	f := frame{raw: Window{open: cols.Open, high: cols.High, low: cols.Low, close: cols.Close, atr: atr, th: th}}
	f.rounded = Window{
		open:  roundColumn(cols.Open, th.RoundDecimals),
		high:  roundColumn(cols.High, th.RoundDecimals),
		low:   roundColumn(cols.Low, th.RoundDecimals),
		close: roundColumn(cols.Close, th.RoundDecimals),
		atr:   atr,
		th:    th,
	}
	return f
}

// run applies p to every anchor with enough history and writes its
// columns one bar later. Anchors on the final bar produce an event but no
// column entry.
func run(p Predicate, f frame, n int) (bull, bear []bool, events []Event) {
	bull = make([]bool, n)
	bear = make([]bool, n)
	w := f.raw
	if p.Rounded() {
		w = f.rounded
	}
	for i := p.Lookback(); i < n; i++ {
		w.i = i
		d := p.Match(w)
		if d == DirectionNone {
			continue
		}
		events = append(events, Event{Index: i, Pattern: p.Name(), Direction: d})
		if i+1 >= n {
			continue
		}
		if d == DirectionBullish {
			bull[i+1] = true
		} else {
			bear[i+1] = true
		}
	}
	return bull, bear, events
}

// Scan runs every registered predicate plus Euphoria over cols. atr may be
// nil; predicates that need it then never fire.
func Scan(cols kline.Columns, atr []float64, th Thresholds) (*Result, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	n := cols.Len()
	f := newFrame(cols, atr, th)

	type out struct {
		bull, bear []bool
		events     []Event
	}
	outs := make([]out, len(registry)+1)

	var wg sync.WaitGroup
	for k, p := range registry {
		wg.Add(1)
		go func(k int, p Predicate) {
			defer wg.Done()
			b, s, ev := run(p, f, n)
			outs[k] = out{b, s, ev}
		}(k, p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		b, s, ev := Euphoria(cols)
		outs[len(registry)] = out{b, s, ev}
	}()
	wg.Wait()

	res := &Result{
		Len:     n,
		Bullish: make(map[PatternType][]bool, len(outs)),
		Bearish: make(map[PatternType][]bool, len(outs)),
	}
	for k, o := range outs {
		name := PatternEuphoria
		if k < len(registry) {
			name = registry[k].Name()
		}
		res.Bullish[name] = o.bull
		res.Bearish[name] = o.bear
		res.Events = append(res.Events, o.events...)
	}
	sort.SliceStable(res.Events, func(a, b int) bool {
		return res.Events[a].Index < res.Events[b].Index
	})
	return res, nil
}

// Detect runs a single pattern by name.
func Detect(name PatternType, cols kline.Columns, atr []float64, th Thresholds) (bull, bear []bool, err error) {
	if err := th.Validate(); err != nil {
		return nil, nil, err
	}
	if name == PatternEuphoria {
		bull, bear, _ = Euphoria(cols)
		return bull, bear, nil
	}
	p, ok := byName[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
	}
	bull, bear, _ = run(p, newFrame(cols, atr, th), cols.Len())
	return bull, bear, nil
}
