package boltcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/tally/internal/domain/stats"
)

func sampleCounters(in uint32) stats.PackedCounters {
	return stats.PackedCounters{
		InputTokens:  in,
		OutputTokens: in / 2,
		ToolCalls:    3,
		Messages:     7,
		CostMicros:   125_000,
	}
}

func TestEncodeHot_SingleMessageRoundTrip(t *testing.T) {
	entry := &Entry{
		Identity:     Identity{Size: 812, ModTimeNs: 1234567890, Hash: 42},
		SessionModel: "gemini-pro",
		Contribution: &stats.Contribution{
			Kind: stats.KindSingleMessage,
			Single: &stats.MessagePart{
				Date:     20260310,
				Model:    3,
				Counters: sampleCounters(100),
			},
		},
	}

	blob, err := encodeHot(entry)
	require.NoError(t, err)
	got, err := decodeHot(blob)
	require.NoError(t, err)
	assert.Equal(t, entry.Identity, got.Identity)
	assert.Equal(t, entry.SessionModel, got.SessionModel)
	assert.Equal(t, entry.Contribution, got.Contribution)
}

func TestEncodeHot_SingleSessionRoundTrip(t *testing.T) {
	entry := &Entry{
		Identity: Identity{Size: 4096, ModTimeNs: 99},
		Contribution: &stats.Contribution{
			Kind: stats.KindSingleSession,
			Session: &stats.SessionPart{
				SessionID: "sess-a",
				Name:      "refactor the parser",
				FirstSeen: 1760000000,
				Models:    map[stats.ModelKey]uint16{1: 4, 2: 1},
				ByDate: map[stats.Date]stats.PackedCounters{
					20260310: sampleCounters(100),
					20260311: sampleCounters(250),
				},
			},
		},
	}

	blob, err := encodeHot(entry)
	require.NoError(t, err)
	got, err := decodeHot(blob)
	require.NoError(t, err)
	assert.Equal(t, entry.Contribution, got.Contribution)
}

func TestEncodeHot_MultiSessionRoundTrip(t *testing.T) {
	entry := &Entry{
		Contribution: &stats.Contribution{
			Kind: stats.KindMultiSession,
			Multi: &stats.MultiPart{
				Sessions: map[string]*stats.SessionSlice{
					"a": {Name: "one", FirstSeen: 100, Models: map[stats.ModelKey]uint16{1: 2}, Counters: sampleCounters(10)},
					"b": {Models: map[stats.ModelKey]uint16{}, Counters: sampleCounters(20)},
				},
				ByDate: map[stats.Date]stats.PackedCounters{
					20260310: sampleCounters(30),
				},
			},
		},
	}

	blob, err := encodeHot(entry)
	require.NoError(t, err)
	got, err := decodeHot(blob)
	require.NoError(t, err)
	assert.Equal(t, entry.Contribution, got.Contribution)
}

func TestEncodeHot_Deterministic(t *testing.T) {
	entry := &Entry{
		Contribution: &stats.Contribution{
			Kind: stats.KindSingleSession,
			Session: &stats.SessionPart{
				SessionID: "s",
				Models:    map[stats.ModelKey]uint16{5: 1, 2: 3, 9: 2},
				ByDate: map[stats.Date]stats.PackedCounters{
					20260312: sampleCounters(1),
					20260310: sampleCounters(2),
					20260311: sampleCounters(3),
				},
			},
		},
	}
	a, err := encodeHot(entry)
	require.NoError(t, err)
	b, err := encodeHot(entry)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeHot_NilContribution(t *testing.T) {
	_, err := encodeHot(&Entry{})
	assert.Error(t, err)
}

func TestDecodeHot_Truncated(t *testing.T) {
	entry := &Entry{
		Contribution: &stats.Contribution{
			Kind:   stats.KindSingleMessage,
			Single: &stats.MessagePart{Date: 20260310, Counters: sampleCounters(5)},
		},
	}
	blob, err := encodeHot(entry)
	require.NoError(t, err)

	for _, n := range []int{0, 1, len(blob) / 2, len(blob) - 1} {
		_, err := decodeHot(blob[:n])
		assert.Error(t, err, "prefix of %d bytes", n)
	}
}

func TestDecodeHot_UnknownKind(t *testing.T) {
	entry := &Entry{
		Contribution: &stats.Contribution{
			Kind:   stats.KindSingleMessage,
			Single: &stats.MessagePart{Counters: sampleCounters(5)},
		},
	}
	blob, err := encodeHot(entry)
	require.NoError(t, err)

	// The kind byte sits right after identity and the scalar string.
	blob[8+8+8+2] = 0xFF
	_, err = decodeHot(blob)
	assert.Error(t, err)
}
