package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	err := Wrap(NotFoundf("zone %s", "z1"), "update zone")
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrForbidden))
	assert.Contains(t, err.Error(), "zone z1")

	assert.True(t, Is(Forbiddenf("entity %s", "e1"), ErrForbidden))
	assert.True(t, Is(InvalidInputf("ring needs 3 points"), ErrInvalidInput))

	up := Upstream(New("connection refused"), "judge call")
	assert.True(t, Is(up, ErrUpstreamUnavailable))
	assert.Contains(t, up.Error(), "connection refused")
}
