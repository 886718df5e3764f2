// Binary encoding for hot cache entries.
//
// The hot blob per file holds exactly what the startup fold needs — identity,
// packed contribution, cached session scalar — in a compact little-endian
// format readable in a single pass. Message records (the cold blob) are JSON
// in a separate bucket, loaded only on drill-down.
//
// Hot entry layout (little-endian):
//
//	identity:  size int64 + modTimeNs int64 + hash uint64
//	scalar:    keyLen uint16 + bytes
//	kind:      uint8
//	payload:   variant-specific (below)
//
// PackedCounters is a fixed 28-byte record: 4×uint32 + 2×uint16 + uint64.
package boltcache

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/corey/tally/internal/domain/stats"
)

const countersSize = 28

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) i64(v int64)  { e.u64(uint64(v)) }

func (e *encoder) str(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

func (e *encoder) counters(p stats.PackedCounters) {
	e.u32(p.InputTokens)
	e.u32(p.OutputTokens)
	e.u32(p.CacheReadTokens)
	e.u32(p.CacheWriteTokens)
	e.u16(p.ToolCalls)
	e.u16(p.Messages)
	e.u64(p.CostMicros)
}

// encodeHot serializes the hot portion of an entry. Maps are written in
// sorted key order for deterministic output.
func encodeHot(entry *Entry) ([]byte, error) {
	e := &encoder{buf: make([]byte, 0, 128)}

	e.i64(entry.Identity.Size)
	e.i64(entry.Identity.ModTimeNs)
	e.u64(entry.Identity.Hash)
	if err := e.str(entry.SessionModel); err != nil {
		return nil, err
	}

	c := entry.Contribution
	if c == nil {
		return nil, fmt.Errorf("nil contribution")
	}
	e.u8(uint8(c.Kind))

	switch c.Kind {
	case stats.KindSingleMessage:
		e.u32(uint32(c.Single.Date))
		e.u16(uint16(c.Single.Model))
		e.counters(c.Single.Counters)

	case stats.KindSingleSession:
		sp := c.Session
		if err := e.str(sp.SessionID); err != nil {
			return nil, err
		}
		if err := e.str(sp.Name); err != nil {
			return nil, err
		}
		e.i64(sp.FirstSeen)
		encodeModels(e, sp.Models)
		encodeDateTable(e, sp.ByDate)

	case stats.KindMultiSession:
		mp := c.Multi
		ids := make([]string, 0, len(mp.Sessions))
		for id := range mp.Sessions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		e.u32(uint32(len(ids)))
		for _, id := range ids {
			slice := mp.Sessions[id]
			if err := e.str(id); err != nil {
				return nil, err
			}
			if err := e.str(slice.Name); err != nil {
				return nil, err
			}
			e.i64(slice.FirstSeen)
			encodeModels(e, slice.Models)
			e.counters(slice.Counters)
		}
		encodeDateTable(e, mp.ByDate)

	default:
		return nil, fmt.Errorf("unknown contribution kind %d", c.Kind)
	}

	return e.buf, nil
}

func encodeModels(e *encoder, models map[stats.ModelKey]uint16) {
	keys := make([]stats.ModelKey, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	e.u16(uint16(len(keys)))
	for _, k := range keys {
		e.u16(uint16(k))
		e.u16(models[k])
	}
}

func encodeDateTable(e *encoder, byDate map[stats.Date]stats.PackedCounters) {
	dates := make([]stats.Date, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	e.u32(uint32(len(dates)))
	for _, d := range dates {
		e.u32(uint32(d))
		e.counters(byDate[d])
	}
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) need(n int) error {
	if d.off+n > len(d.buf) {
		return fmt.Errorf("truncated hot entry at offset %d (need %d of %d)", d.off, n, len(d.buf))
	}
	return nil
}

func (d *decoder) u8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

func (d *decoder) str() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) counters() (stats.PackedCounters, error) {
	if err := d.need(countersSize); err != nil {
		return stats.PackedCounters{}, err
	}
	var p stats.PackedCounters
	p.InputTokens, _ = d.u32()
	p.OutputTokens, _ = d.u32()
	p.CacheReadTokens, _ = d.u32()
	p.CacheWriteTokens, _ = d.u32()
	p.ToolCalls, _ = d.u16()
	p.Messages, _ = d.u16()
	p.CostMicros, _ = d.u64()
	return p, nil
}

// decodeHot deserializes a hot entry. Every read is bounds-checked so corrupt
// data yields an error, never a panic.
func decodeHot(data []byte) (*Entry, error) {
	d := &decoder{buf: data}
	entry := &Entry{}

	var err error
	if entry.Identity.Size, err = d.i64(); err != nil {
		return nil, err
	}
	if entry.Identity.ModTimeNs, err = d.i64(); err != nil {
		return nil, err
	}
	if entry.Identity.Hash, err = d.u64(); err != nil {
		return nil, err
	}
	if entry.SessionModel, err = d.str(); err != nil {
		return nil, err
	}

	kindByte, err := d.u8()
	if err != nil {
		return nil, err
	}
	kind := stats.Kind(kindByte)
	c := &stats.Contribution{Kind: kind}

	switch kind {
	case stats.KindSingleMessage:
		part := &stats.MessagePart{}
		date, err := d.u32()
		if err != nil {
			return nil, err
		}
		part.Date = stats.Date(date)
		model, err := d.u16()
		if err != nil {
			return nil, err
		}
		part.Model = stats.ModelKey(model)
		if part.Counters, err = d.counters(); err != nil {
			return nil, err
		}
		c.Single = part

	case stats.KindSingleSession:
		sp := &stats.SessionPart{}
		if sp.SessionID, err = d.str(); err != nil {
			return nil, err
		}
		if sp.Name, err = d.str(); err != nil {
			return nil, err
		}
		if sp.FirstSeen, err = d.i64(); err != nil {
			return nil, err
		}
		if sp.Models, err = decodeModels(d); err != nil {
			return nil, err
		}
		if sp.ByDate, err = decodeDateTable(d); err != nil {
			return nil, err
		}
		c.Session = sp

	case stats.KindMultiSession:
		mp := &stats.MultiPart{Sessions: make(map[string]*stats.SessionSlice)}
		count, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			id, err := d.str()
			if err != nil {
				return nil, err
			}
			slice := &stats.SessionSlice{}
			if slice.Name, err = d.str(); err != nil {
				return nil, err
			}
			if slice.FirstSeen, err = d.i64(); err != nil {
				return nil, err
			}
			if slice.Models, err = decodeModels(d); err != nil {
				return nil, err
			}
			if slice.Counters, err = d.counters(); err != nil {
				return nil, err
			}
			mp.Sessions[id] = slice
		}
		if mp.ByDate, err = decodeDateTable(d); err != nil {
			return nil, err
		}
		c.Multi = mp

	default:
		return nil, fmt.Errorf("unknown contribution kind %d", kindByte)
	}

	entry.Contribution = c
	return entry, nil
}

func decodeModels(d *decoder) (map[stats.ModelKey]uint16, error) {
	count, err := d.u16()
	if err != nil {
		return nil, err
	}
	models := make(map[stats.ModelKey]uint16, count)
	for i := uint16(0); i < count; i++ {
		key, err := d.u16()
		if err != nil {
			return nil, err
		}
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		models[stats.ModelKey(key)] = n
	}
	return models, nil
}

func decodeDateTable(d *decoder) (map[stats.Date]stats.PackedCounters, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	byDate := make(map[stats.Date]stats.PackedCounters, count)
	for i := uint32(0); i < count; i++ {
		date, err := d.u32()
		if err != nil {
			return nil, err
		}
		p, err := d.counters()
		if err != nil {
			return nil, err
		}
		byDate[stats.Date(date)] = p
	}
	return byDate, nil
}
