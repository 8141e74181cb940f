package errx_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/v0xg/pixellens/internal/errx"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := errors.New("net::ERR_NAME_NOT_RESOLVED")
	err := fmt.Errorf("step %q: %w", "load", errx.Wrap(errx.KindNavigation, base, "navigate"))

	assert.True(t, errx.Is(err, errx.KindNavigation))
	assert.False(t, errx.Is(err, errx.KindTimeout))
	assert.Equal(t, errx.KindNavigation, errx.KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, `step "load": NAVIGATION_ERROR: navigate: net::ERR_NAME_NOT_RESOLVED`, err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, errx.KindInternal, errx.KindOf(errors.New("boom")))
	assert.Equal(t, "CONFIG_ERROR: unknown label", errx.Newf(errx.KindConfig, "unknown %s", "label").Error())
}
