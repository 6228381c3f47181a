//go:build !fyne

package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/app"
)

func TestRunStubReturnsHelpfulError(t *testing.T) {
	called := false
	err := Run(context.Background(), func(app.ThemeApplier) (*app.App, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "UI not built")
	assert.Contains(t, err.Error(), "-tags fyne")
	assert.Contains(t, err.Error(), "traindispatcher tui")
}
