package stats

import (
	"math"
	"time"

	"github.com/corey/tally/internal/ports"
)

// Date is a calendar date packed as YYYYMMDD. A uint32 date keys the per-day
// tables without the 24 bytes and pointer of a time.Time.
type Date uint32

// DateOf packs the calendar date of t (in local time). The zero Date marks
// messages with no parseable timestamp.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return 0
	}
	y, m, d := t.Date()
	return Date(y*10000 + int(m)*100 + d)
}

// String formats the date as "2006-01-02". The zero date renders as "unknown".
func (d Date) String() string {
	if d == 0 {
		return "unknown"
	}
	t := time.Date(int(d/10000), time.Month(d/100%100), int(d%100), 0, 0, 0, 0, time.UTC)
	return t.Format("2006-01-02")
}

// costMicroScale converts dollars to integer micro-dollars so that merge and
// unmerge stay exact — float subtraction would not be a guaranteed inverse.
const costMicroScale = 1_000_000

// PackedCounters is the compact per-date statistics record carried inside a
// contribution. Token fields clamp at ~4.2 billion and counts at 65535; the
// clamp thresholds are memory parameters, not part of the contract.
type PackedCounters struct {
	InputTokens      uint32
	OutputTokens     uint32
	CacheReadTokens  uint32
	CacheWriteTokens uint32
	ToolCalls        uint16
	Messages         uint16
	CostMicros       uint64
}

// AddMessage folds one normalized message into the counters, saturating.
func (p *PackedCounters) AddMessage(m *ports.NormalizedMessage) {
	p.InputTokens = satAdd32(p.InputTokens, m.InputTokens)
	p.OutputTokens = satAdd32(p.OutputTokens, m.OutputTokens)
	p.CacheReadTokens = satAdd32(p.CacheReadTokens, m.CacheReadTokens)
	p.CacheWriteTokens = satAdd32(p.CacheWriteTokens, m.CacheWriteTokens)
	p.ToolCalls = satAdd16(p.ToolCalls, int64(m.ToolCalls))
	p.Messages = satAdd16(p.Messages, 1)
	p.CostMicros = satAddCost(p.CostMicros, m.CostUSD)
}

// IsZero reports whether every counter is zero.
func (p PackedCounters) IsZero() bool {
	return p == PackedCounters{}
}

func satAdd32(a uint32, b int64) uint32 {
	if b <= 0 {
		return a
	}
	sum := int64(a) + b
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

func satAdd16(a uint16, b int64) uint16 {
	if b <= 0 {
		return a
	}
	sum := int64(a) + b
	if sum > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(sum)
}

func satAddCost(a uint64, usd float64) uint64 {
	if usd <= 0 {
		return a
	}
	micros := uint64(math.Round(usd * costMicroScale))
	if a > math.MaxUint64-micros {
		return math.MaxUint64
	}
	return a + micros
}
