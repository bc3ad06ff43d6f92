package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrid(t *testing.T) {
	g, err := NewGrid("09:00", "11:00", 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, g.Tokens())

	_, err = NewGrid("11:00", "09:00", 30)
	assert.Error(t, err)

	_, err = NewGrid("nine", "11:00", 30)
	assert.Error(t, err)
}

func TestGrid_Next(t *testing.T) {
	g, err := NewGrid("09:00", "10:30", 30)
	require.NoError(t, err)

	next, ok := g.Next("09:00")
	assert.True(t, ok)
	assert.Equal(t, "09:30", next)

	// Last token has no successor.
	_, ok = g.Next("10:00")
	assert.False(t, ok)

	_, ok = g.Next("12:00")
	assert.False(t, ok)
}

func TestGrid_Contiguous(t *testing.T) {
	g, err := NewGrid("09:00", "12:00", 30)
	require.NoError(t, err)

	assert.True(t, g.Contiguous([]string{"09:00"}))
	assert.True(t, g.Contiguous([]string{"09:30", "10:00", "10:30"}))
	assert.False(t, g.Contiguous([]string{"09:00", "10:00"}))
	assert.False(t, g.Contiguous([]string{"10:00", "09:30"}))
	assert.False(t, g.Contiguous(nil))
	assert.False(t, g.Contiguous([]string{"08:00", "08:30"}))
}
