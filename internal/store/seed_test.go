package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
)

func TestParseSeedEntry(t *testing.T) {
	e, err := ParseSeedEntry("parent:kid:Deniz Y")
	require.NoError(t, err)
	assert.Equal(t, domain.TrackedEntity{OwnerID: "parent", ID: "kid", DisplayName: "Deniz Y"}, e)

	e, err = ParseSeedEntry("parent:kid")
	require.NoError(t, err)
	assert.Equal(t, "kid", e.DisplayName)

	for _, bad := range []string{"", "parent", ":kid", "parent:"} {
		_, err := ParseSeedEntry(bad)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), bad)
	}
}

func TestSeedKeepsExistingOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateOwner(ctx, &domain.Owner{ID: "parent", DisplayName: "Mum", PushToken: "tok"}))

	n, err := Seed(ctx, m, []string{"parent:kid:Deniz", "other:bike"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	o, err := m.GetOwner(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, "tok", o.PushToken)
	assert.False(t, o.AnomalyEnabled)

	o, err = m.GetOwner(ctx, "other")
	require.NoError(t, err)
	assert.True(t, o.AnomalyEnabled)

	e, err := m.GetEntity(ctx, "bike")
	require.NoError(t, err)
	assert.Equal(t, "other", e.OwnerID)

	_, err = Seed(ctx, m, []string{"broken"})
	assert.Error(t, err)
}
