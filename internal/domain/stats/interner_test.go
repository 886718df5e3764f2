package stats

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterner_EmptyStringIsZero(t *testing.T) {
	in := NewModelInterner()
	assert.Equal(t, ModelKey(0), in.Intern(""))
	assert.Equal(t, "", in.Name(0))
}

func TestInterner_StableKeys(t *testing.T) {
	in := NewModelInterner()
	opus := in.Intern("claude-opus-4")
	sonnet := in.Intern("claude-sonnet-4")

	assert.NotEqual(t, opus, sonnet)
	assert.Equal(t, opus, in.Intern("claude-opus-4"))
	assert.Equal(t, "claude-opus-4", in.Name(opus))
	assert.Equal(t, "claude-sonnet-4", in.Name(sonnet))
}

func TestInterner_UnknownKeyIsEmpty(t *testing.T) {
	in := NewModelInterner()
	assert.Equal(t, "", in.Name(99))
}

func TestInterner_Restore(t *testing.T) {
	in := NewModelInterner()
	ok := in.Restore([]string{"", "claude-opus-4", "gemini-pro"})
	assert.True(t, ok)
	assert.Equal(t, ModelKey(1), in.Intern("claude-opus-4"))
	assert.Equal(t, ModelKey(2), in.Intern("gemini-pro"))
	assert.Equal(t, ModelKey(3), in.Intern("claude-sonnet-4"))
}

func TestInterner_RestoreIncompatible(t *testing.T) {
	in := NewModelInterner()
	in.Intern("claude-opus-4")

	// A persisted table that disagrees with a live key must be rejected.
	assert.False(t, in.Restore([]string{"", "gemini-pro"}))
}

func TestInterner_RestorePrefixOfLive(t *testing.T) {
	in := NewModelInterner()
	in.Intern("claude-opus-4")
	in.Intern("gemini-pro")

	assert.True(t, in.Restore([]string{"", "claude-opus-4"}))
	assert.Equal(t, ModelKey(2), in.Intern("gemini-pro"))
}

func TestInterner_Concurrent(t *testing.T) {
	in := NewModelInterner()
	var wg sync.WaitGroup
	keys := make([]ModelKey, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i] = in.Intern(fmt.Sprintf("model-%d", i%4))
		}(i)
	}
	wg.Wait()

	// Same name always resolves to the same key.
	for i := 0; i < 16; i++ {
		assert.Equal(t, in.Intern(fmt.Sprintf("model-%d", i%4)), keys[i])
	}
	assert.Equal(t, 5, in.Len()) // "" plus four models
}
