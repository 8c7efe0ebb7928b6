package inspector

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestUpdateOnTickPollsSourceAndAdvancesSamples(t *testing.T) {
	calls := 0
	source := func() Stats {
		calls++
		return Stats{TotalRequests: int64(calls), EqueueLen: calls}
	}
	m := NewModel(source, time.Millisecond)

	next, _ := m.Update(tickMsg(time.Now()))
	model := next.(Model)
	require.Equal(t, 1, calls)
	require.Equal(t, int64(1), model.current.TotalRequests)

	next, _ = model.Update(tickMsg(time.Now()))
	model = next.(Model)
	require.Equal(t, int64(1), model.previous.TotalRequests)
	require.Equal(t, int64(2), model.current.TotalRequests)
}

func TestUpdateOnQuitKeyReturnsQuitCommand(t *testing.T) {
	m := NewModel(func() Stats { return Stats{} }, time.Millisecond)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}

func TestViewRendersWithoutPanicking(t *testing.T) {
	m := NewModel(func() Stats { return Stats{Workers: 4, EqueueLen: 2, TotalRequests: 10} }, time.Millisecond)
	require.NotPanics(t, func() { _ = m.View() })
}
