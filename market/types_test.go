package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pointsmarket/market"
)

func TestAmount_Arithmetic(t *testing.T) {
	a := market.NewAmount(100)
	b := market.NewAmount(30)

	assert.Equal(t, int64(130), a.Add(b).Int64())
	assert.Equal(t, int64(70), a.Sub(b).Int64())
	assert.Equal(t, int64(-30), b.Neg().Int64())
	assert.True(t, b.LessThan(a))
	assert.True(t, a.GreaterThan(b))
	assert.True(t, a.Equal(market.NewAmount(100)))
}

func TestAmount_Predicates(t *testing.T) {
	assert.True(t, market.NewAmount(0).IsZero())
	assert.True(t, market.NewAmount(5).IsPositive())
	assert.True(t, market.NewAmount(-5).IsNegative())
	assert.True(t, market.NewAmount(5).IsInteger())

	half, err := market.ParseAmount("0.5")
	require.NoError(t, err)
	assert.False(t, half.IsInteger())
}

func TestParseAmount_Invalid(t *testing.T) {
	_, err := market.ParseAmount("not a number")
	assert.Error(t, err)
}

func TestUser_FullName(t *testing.T) {
	u := &market.User{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", u.FullName())
}
