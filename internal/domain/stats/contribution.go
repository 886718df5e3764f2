package stats

import (
	"math"

	"github.com/corey/tally/internal/ports"
)

// Kind tags the contribution variant. The set is closed: it mirrors the three
// file-to-record layouts sources declare via ports.Cardinality, and every
// merge/unmerge switch is exhaustive over it.
type Kind uint8

const (
	KindSingleMessage Kind = iota + 1
	KindSingleSession
	KindMultiSession
)

// Contribution is the net statistical effect of one file's current records on
// an aggregate. It is fully determined by those records (plus the interner),
// can be added to and subtracted from an aggregate, and add-then-subtract is
// a no-op. Exactly one of the variant pointers is non-nil, per Kind.
type Contribution struct {
	Kind    Kind
	Single  *MessagePart
	Session *SessionPart
	Multi   *MultiPart
}

// MessagePart packs a one-message file: date, counters, one interned model.
type MessagePart struct {
	Date     Date
	Model    ModelKey
	Counters PackedCounters
}

// SessionPart packs a one-session file: per-date counters plus the
// session-level identity, display name, first-seen time, and model counts.
type SessionPart struct {
	SessionID string
	Name      string
	FirstSeen int64
	Models    map[ModelKey]uint16
	ByDate    map[Date]PackedCounters
}

// Totals folds the per-date table into one counters record. Saturating adds
// of non-negative values are order independent, so the result is
// deterministic regardless of map iteration order.
func (sp *SessionPart) Totals() PackedCounters {
	var total PackedCounters
	for _, p := range sp.ByDate {
		total.Add(p)
	}
	return total
}

// SessionSlice is one session's share of a multi-session file.
type SessionSlice struct {
	Name      string
	FirstSeen int64
	Models    map[ModelKey]uint16
	Counters  PackedCounters
}

// MultiPart packs a file whose records span many sessions: a per-session
// table plus a per-date roll-up.
type MultiPart struct {
	Sessions map[string]*SessionSlice
	ByDate   map[Date]PackedCounters
}

// Add folds another counters record into p, saturating.
func (p *PackedCounters) Add(o PackedCounters) {
	p.InputTokens = satAdd32(p.InputTokens, int64(o.InputTokens))
	p.OutputTokens = satAdd32(p.OutputTokens, int64(o.OutputTokens))
	p.CacheReadTokens = satAdd32(p.CacheReadTokens, int64(o.CacheReadTokens))
	p.CacheWriteTokens = satAdd32(p.CacheWriteTokens, int64(o.CacheWriteTokens))
	p.ToolCalls = satAdd16(p.ToolCalls, int64(o.ToolCalls))
	p.Messages = satAdd16(p.Messages, int64(o.Messages))
	if p.CostMicros > math.MaxUint64-o.CostMicros {
		p.CostMicros = math.MaxUint64
	} else {
		p.CostMicros += o.CostMicros
	}
}

// FromRecords builds the contribution for a file's current records. It is
// deterministic and reads no external state beyond the interner. An empty
// record list yields a contribution that merges as a no-op.
func FromRecords(card ports.Cardinality, msgs []ports.NormalizedMessage, in *ModelInterner) *Contribution {
	switch card {
	case ports.SingleMessage:
		return fromSingleMessage(msgs, in)
	case ports.SingleSession:
		return &Contribution{Kind: KindSingleSession, Session: fromSession(msgs, in)}
	case ports.MultiSession:
		return fromMultiSession(msgs, in)
	default:
		// Unknown cardinality behaves like the most general layout.
		return fromMultiSession(msgs, in)
	}
}

func fromSingleMessage(msgs []ports.NormalizedMessage, in *ModelInterner) *Contribution {
	part := &MessagePart{}
	for i := range msgs {
		m := &msgs[i]
		if i == 0 {
			part.Date = DateOf(m.Timestamp)
			part.Model = in.Intern(m.Model)
		}
		part.Counters.AddMessage(m)
	}
	return &Contribution{Kind: KindSingleMessage, Single: part}
}

func fromSession(msgs []ports.NormalizedMessage, in *ModelInterner) *SessionPart {
	sp := &SessionPart{
		Models: make(map[ModelKey]uint16),
		ByDate: make(map[Date]PackedCounters),
	}
	for i := range msgs {
		m := &msgs[i]
		if sp.SessionID == "" {
			sp.SessionID = m.SessionID
		}
		if sp.Name == "" {
			sp.Name = m.SessionName
		}
		if ts := m.Timestamp.Unix(); !m.Timestamp.IsZero() && (sp.FirstSeen == 0 || ts < sp.FirstSeen) {
			sp.FirstSeen = ts
		}
		if m.Model != "" {
			key := in.Intern(m.Model)
			sp.Models[key] = satAdd16(sp.Models[key], 1)
		}
		p := sp.ByDate[DateOf(m.Timestamp)]
		p.AddMessage(m)
		sp.ByDate[DateOf(m.Timestamp)] = p
	}
	return sp
}

func fromMultiSession(msgs []ports.NormalizedMessage, in *ModelInterner) *Contribution {
	mp := &MultiPart{
		Sessions: make(map[string]*SessionSlice),
		ByDate:   make(map[Date]PackedCounters),
	}
	for i := range msgs {
		m := &msgs[i]
		slice := mp.Sessions[m.SessionID]
		if slice == nil {
			slice = &SessionSlice{Models: make(map[ModelKey]uint16)}
			mp.Sessions[m.SessionID] = slice
		}
		if slice.Name == "" {
			slice.Name = m.SessionName
		}
		if ts := m.Timestamp.Unix(); !m.Timestamp.IsZero() && (slice.FirstSeen == 0 || ts < slice.FirstSeen) {
			slice.FirstSeen = ts
		}
		if m.Model != "" {
			key := in.Intern(m.Model)
			slice.Models[key] = satAdd16(slice.Models[key], 1)
		}
		slice.Counters.AddMessage(m)

		p := mp.ByDate[DateOf(m.Timestamp)]
		p.AddMessage(m)
		mp.ByDate[DateOf(m.Timestamp)] = p
	}
	return &Contribution{Kind: KindMultiSession, Multi: mp}
}

// MergeInto adds this contribution's counters into the aggregate's date and
// session tables, creating rows as needed.
func (c *Contribution) MergeInto(a *AggregateView) {
	c.apply(a, 1)
}

// UnmergeFrom subtracts exactly what MergeInto added. Rows are removed when
// their last contributor leaves, so a deleted file cannot strand a
// zero-but-present session, and dates survive while other files still
// contribute to them.
func (c *Contribution) UnmergeFrom(a *AggregateView) {
	c.apply(a, -1)
}

func (c *Contribution) apply(a *AggregateView, sign int) {
	switch c.Kind {
	case KindSingleMessage:
		p := c.Single
		if p.Counters.IsZero() {
			return // empty file, nothing to add or undo
		}
		a.applyDay(p.Date, p.Counters, sign)
	case KindSingleSession:
		sp := c.Session
		if len(sp.ByDate) == 0 {
			return
		}
		for date, p := range sp.ByDate {
			a.applyDay(date, p, sign)
		}
		a.applySession(sp.SessionID, sp.Totals(), sp.Models, sp.FirstSeen, sp.Name, sign)
	case KindMultiSession:
		mp := c.Multi
		for date, p := range mp.ByDate {
			a.applyDay(date, p, sign)
		}
		for id, slice := range mp.Sessions {
			a.applySession(id, slice.Counters, slice.Models, slice.FirstSeen, slice.Name, sign)
		}
	}
}
