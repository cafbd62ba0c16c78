package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Defaults(t *testing.T) {
	c := New(nil)

	free, err := c.Get(Free)
	require.NoError(t, err)
	assert.Equal(t, 5, free.MonthlyQuota)
	assert.Equal(t, 0, free.PriceCents)
	assert.True(t, free.HasFeature(FeatureAutoApply))
	assert.False(t, free.HasFeature(FeatureCVReview))

	pro, err := c.Get(Pro)
	require.NoError(t, err)
	assert.Equal(t, 100, pro.MonthlyQuota)
	assert.True(t, pro.HasFeature(FeatureCVReview))
	assert.False(t, pro.HasFeature(FeatureRecruiterReach))

	exec, err := c.Get(Executive)
	require.NoError(t, err)
	assert.True(t, exec.HasFeature(FeatureRecruiterReach))
}

func TestCatalog_NotFound(t *testing.T) {
	c := New(nil)

	_, err := c.Get(ID("platinum"))
	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.False(t, c.Valid(ID("platinum")))
	assert.True(t, c.Valid(Pro))
}

func TestCatalog_QuotaOverrides(t *testing.T) {
	c := New(map[ID]int{
		Free: 10,
		Pro:  0, // ignored, keeps default
	})

	free, _ := c.Get(Free)
	assert.Equal(t, 10, free.MonthlyQuota)

	pro, _ := c.Get(Pro)
	assert.Equal(t, 100, pro.MonthlyQuota)

	// Overrides never touch features or pricing
	assert.True(t, free.HasFeature(FeatureAutoApply))
	assert.Equal(t, 0, free.PriceCents)
}

func TestCatalog_ListOrder(t *testing.T) {
	c := New(nil)

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, Free, list[0].ID)
	assert.Equal(t, Pro, list[1].ID)
	assert.Equal(t, Executive, list[2].ID)
}
