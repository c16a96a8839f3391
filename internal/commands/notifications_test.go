package commands

import (
	"testing"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/edusync/internal/rest"
)

func TestRenderNotification(t *testing.T) {
	n := rest.Notification{
		ID:        "n1",
		Title:     "Grades published",
		Message:   "Your **Algebra** grade is available.",
		IsRead:    false,
		CreatedAt: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	t.Run("plain", func(t *testing.T) {
		out := renderNotification(nil, n)
		assert.Contains(t, out, "### Grades published *(unread)*")
		assert.Contains(t, out, "Your **Algebra** grade is available.")
	})

	t.Run("rendered", func(t *testing.T) {
		renderer, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(80))
		require.NoError(t, err)

		out := renderNotification(renderer, n)
		assert.Contains(t, out, "Grades published")
		assert.Contains(t, out, "Algebra")
	})

	t.Run("read", func(t *testing.T) {
		n.IsRead = true
		assert.NotContains(t, renderNotification(nil, n), "unread")
	})
}
