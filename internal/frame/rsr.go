package frame

import (
	"sync"
	"time"
)

// RSRResult is one station's computed Reception Success Rate: the count
// of packets seen in the current window, the maximum expected per
// second, and the resulting percentage.
type RSRResult struct {
	Count     int
	Expected  int
	Percent   int
}

// RSRAccumulator implements the reception-success-rate accumulator
// described in spec §4.1: a sliding per-station, per-wall-second packet
// count, re-evaluated every stride against a window of seconds, producing
// a percentage of expected-vs-received traffic per station.
//
// Grounded on fisb/level0/ground_uplink_message.py's calculateRSR.
type RSRAccumulator struct {
	mu          sync.Mutex
	windowSecs  int
	strideSecs  int
	useExpected bool

	perSecond map[int64]map[string]int
	lastSec   int64
	totalSecs int64
}

// NewRSRAccumulator creates an accumulator with the given window and
// stride, both in seconds.
func NewRSRAccumulator(windowSecs, strideSecs int, useExpectedCount bool) *RSRAccumulator {
	return &RSRAccumulator{
		windowSecs:  windowSecs,
		strideSecs:  strideSecs,
		useExpected: useExpectedCount,
		perSecond:   make(map[int64]map[string]int),
		lastSec:     -1,
	}
}

// Observe records one packet's arrival and, when the accumulator crosses
// a stride boundary with enough history, returns a freshly computed
// per-station RSR map. It returns nil when no recomputation occurred on
// this call.
func (a *RSRAccumulator) Observe(rcvd time.Time, tisbID int, station string) map[string]RSRResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := rcvd.Unix()
	var out map[string]RSRResult

	if cur > a.lastSec {
		if a.totalSecs > int64(a.windowSecs) && a.totalSecs%int64(a.strideSecs) == 0 {
			out = a.compute(cur, tisbID)
		}
		a.lastSec = cur

		for k := range a.perSecond {
			if k < cur-int64(a.windowSecs)-2 {
				delete(a.perSecond, k)
			}
		}
		a.totalSecs++
	}

	if _, ok := a.perSecond[cur]; !ok {
		a.perSecond[cur] = make(map[string]int)
	}
	a.perSecond[cur][station]++

	return out
}

func (a *RSRAccumulator) compute(cur int64, tisbID int) map[string]RSRResult {
	type acc struct {
		count, expected int
	}
	accum := make(map[string]*acc)

	for i := cur - 1; i > cur-int64(a.windowSecs)-1; i-- {
		stations, ok := a.perSecond[i]
		if !ok {
			continue
		}
		for station, count := range stations {
			a := accum[station]
			if a == nil {
				a = &acc{}
				accum[station] = a
			}
			a.count += count
			if a.expected < count {
				a.expected = count
			}
		}
	}

	if a.useExpected {
		expected := ExpectedPacketsPerSecond(tisbID)
		for _, v := range accum {
			v.expected = expected
		}
	}

	out := make(map[string]RSRResult, len(accum))
	for station, v := range accum {
		pct := 0
		if v.expected > 0 {
			pct = int(float64(v.count) / (float64(v.expected) * float64(a.windowSecs)) * 100.0)
		}
		out[station] = RSRResult{Count: v.count, Expected: v.expected, Percent: pct}
	}
	return out
}
