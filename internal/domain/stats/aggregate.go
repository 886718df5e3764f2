package stats

import "sort"

// AggregateView is one source's live roll-up: per-date and per-session
// statistics maintained exclusively through Contribution merge/unmerge.
// The coordinator owns it; readers only ever see deep copies.
type AggregateView struct {
	SourceID  string
	ByDate    map[Date]*DayStats
	BySession map[string]*SessionStats
}

// NewAggregateView creates an empty aggregate for a source.
func NewAggregateView(sourceID string) *AggregateView {
	return &AggregateView{
		SourceID:  sourceID,
		ByDate:    make(map[Date]*DayStats),
		BySession: make(map[string]*SessionStats),
	}
}

// DayStats is the summed statistics for one calendar date. Contribs counts
// the contributions currently merged into this row; the row is removed when
// it drops to zero.
type DayStats struct {
	Contribs         int
	Messages         int64
	ToolCalls        int64
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	CostMicros       int64
}

// CostUSD returns the summed cost in dollars.
func (d *DayStats) CostUSD() float64 {
	return float64(d.CostMicros) / costMicroScale
}

// TotalTokens returns the sum of all token counters.
func (d *DayStats) TotalTokens() int64 {
	return d.InputTokens + d.OutputTokens + d.CacheReadTokens + d.CacheWriteTokens
}

// SessionStats is the summed statistics for one session identifier. Multiple
// files may contribute to the same session (shared databases), so first-seen
// times and display names are kept per contributor: unmerging one file must
// restore exactly what the remaining files established.
type SessionStats struct {
	Contribs         int
	Messages         int64
	ToolCalls        int64
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	CostMicros       int64
	Models           map[ModelKey]int64
	FirstSeens       []int64        // sorted ascending, one per contributor with a timestamp
	Names            map[string]int // display name -> contributor refcount
}

// FirstSeen returns the earliest contributor timestamp, or 0 if none carried one.
func (s *SessionStats) FirstSeen() int64 {
	if len(s.FirstSeens) == 0 {
		return 0
	}
	return s.FirstSeens[0]
}

// DisplayName returns the most-referenced display name, ties broken
// lexicographically. Empty if no contributor named the session.
func (s *SessionStats) DisplayName() string {
	best, bestCount := "", 0
	for name, count := range s.Names {
		if count > bestCount || (count == bestCount && (best == "" || name < best)) {
			best, bestCount = name, count
		}
	}
	return best
}

// CostUSD returns the summed cost in dollars.
func (s *SessionStats) CostUSD() float64 {
	return float64(s.CostMicros) / costMicroScale
}

// TotalTokens returns the sum of all token counters.
func (s *SessionStats) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens + s.CacheReadTokens + s.CacheWriteTokens
}

func (a *AggregateView) applyDay(date Date, p PackedCounters, sign int) {
	day := a.ByDate[date]
	if day == nil {
		if sign < 0 {
			return // unmerge of a row that never merged; nothing to undo
		}
		day = &DayStats{}
		a.ByDate[date] = day
	}
	s := int64(sign)
	day.Contribs += sign
	day.Messages += s * int64(p.Messages)
	day.ToolCalls += s * int64(p.ToolCalls)
	day.InputTokens += s * int64(p.InputTokens)
	day.OutputTokens += s * int64(p.OutputTokens)
	day.CacheReadTokens += s * int64(p.CacheReadTokens)
	day.CacheWriteTokens += s * int64(p.CacheWriteTokens)
	day.CostMicros += s * int64(p.CostMicros)
	if day.Contribs <= 0 {
		delete(a.ByDate, date)
	}
}

func (a *AggregateView) applySession(id string, p PackedCounters, models map[ModelKey]uint16, firstSeen int64, name string, sign int) {
	sess := a.BySession[id]
	if sess == nil {
		if sign < 0 {
			return
		}
		sess = &SessionStats{
			Models: make(map[ModelKey]int64),
			Names:  make(map[string]int),
		}
		a.BySession[id] = sess
	}
	s := int64(sign)
	sess.Contribs += sign
	sess.Messages += s * int64(p.Messages)
	sess.ToolCalls += s * int64(p.ToolCalls)
	sess.InputTokens += s * int64(p.InputTokens)
	sess.OutputTokens += s * int64(p.OutputTokens)
	sess.CacheReadTokens += s * int64(p.CacheReadTokens)
	sess.CacheWriteTokens += s * int64(p.CacheWriteTokens)
	sess.CostMicros += s * int64(p.CostMicros)

	for key, count := range models {
		sess.Models[key] += s * int64(count)
		if sess.Models[key] == 0 {
			delete(sess.Models, key)
		}
	}

	if firstSeen != 0 {
		if sign > 0 {
			idx := sort.Search(len(sess.FirstSeens), func(i int) bool { return sess.FirstSeens[i] >= firstSeen })
			sess.FirstSeens = append(sess.FirstSeens, 0)
			copy(sess.FirstSeens[idx+1:], sess.FirstSeens[idx:])
			sess.FirstSeens[idx] = firstSeen
		} else {
			idx := sort.Search(len(sess.FirstSeens), func(i int) bool { return sess.FirstSeens[i] >= firstSeen })
			if idx < len(sess.FirstSeens) && sess.FirstSeens[idx] == firstSeen {
				sess.FirstSeens = append(sess.FirstSeens[:idx], sess.FirstSeens[idx+1:]...)
			}
		}
	}

	if name != "" {
		sess.Names[name] += sign
		if sess.Names[name] <= 0 {
			delete(sess.Names, name)
		}
	}

	if sess.Contribs <= 0 {
		delete(a.BySession, id)
	}
}

// Clone returns a deep copy. Snapshots published to readers are clones, so a
// reader can never observe a half-applied merge/unmerge pair.
func (a *AggregateView) Clone() *AggregateView {
	out := NewAggregateView(a.SourceID)
	for date, day := range a.ByDate {
		copied := *day
		out.ByDate[date] = &copied
	}
	for id, sess := range a.BySession {
		copied := *sess
		copied.Models = make(map[ModelKey]int64, len(sess.Models))
		for k, v := range sess.Models {
			copied.Models[k] = v
		}
		copied.FirstSeens = append([]int64(nil), sess.FirstSeens...)
		copied.Names = make(map[string]int, len(sess.Names))
		for k, v := range sess.Names {
			copied.Names[k] = v
		}
		out.BySession[id] = &copied
	}
	return out
}

// Dates returns the aggregate's dates in ascending order.
func (a *AggregateView) Dates() []Date {
	dates := make([]Date, 0, len(a.ByDate))
	for d := range a.ByDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}

// SessionIDs returns the aggregate's session identifiers ordered by
// first-seen time, newest first, ties broken by identifier.
func (a *AggregateView) SessionIDs() []string {
	ids := make([]string, 0, len(a.BySession))
	for id := range a.BySession {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		fi, fj := a.BySession[ids[i]].FirstSeen(), a.BySession[ids[j]].FirstSeen()
		if fi != fj {
			return fi > fj
		}
		return ids[i] < ids[j]
	})
	return ids
}
