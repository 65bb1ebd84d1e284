package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradePilot/internal/domain"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	short := table.Get(domain.HorizonShort)
	assert.Equal(t, 0.5, short.SizeFactor)
	assert.Equal(t, 1.2, short.MinRiskReward)

	medium := table.Get(domain.HorizonMedium)
	assert.Equal(t, 1.5, medium.SLMultiplier)
	assert.Equal(t, 3.0, medium.TPMultiplier)
	assert.Equal(t, 1.0, medium.SizeFactor)
	assert.Equal(t, 2.0, medium.MinRiskReward)

	long := table.Get(domain.HorizonLong)
	assert.Equal(t, 1.5, long.SizeFactor)
}

func TestTable_GetUnknownHorizonFallsBackToMedium(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, table.Get(domain.HorizonMedium), table.Get(domain.Horizon("sideways")))
	assert.Equal(t, table.Get(domain.HorizonMedium), table.Get(domain.Horizon("")))
}

func TestNewTable_Validation(t *testing.T) {
	valid := DefaultTable()
	rows := map[domain.Horizon]HorizonParams{
		domain.HorizonShort:  valid.Get(domain.HorizonShort),
		domain.HorizonMedium: valid.Get(domain.HorizonMedium),
		domain.HorizonLong:   valid.Get(domain.HorizonLong),
	}

	_, err := NewTable(rows)
	require.NoError(t, err)

	t.Run("missing row", func(t *testing.T) {
		partial := map[domain.Horizon]HorizonParams{
			domain.HorizonShort: valid.Get(domain.HorizonShort),
		}
		_, err := NewTable(partial)
		assert.Error(t, err)
	})

	t.Run("non-positive multiplier", func(t *testing.T) {
		bad := make(map[domain.Horizon]HorizonParams, len(rows))
		for h, p := range rows {
			bad[h] = p
		}
		row := bad[domain.HorizonShort]
		row.SLMultiplier = 0
		bad[domain.HorizonShort] = row
		_, err := NewTable(bad)
		assert.Error(t, err)
	})

	t.Run("percentage out of range", func(t *testing.T) {
		bad := make(map[domain.Horizon]HorizonParams, len(rows))
		for h, p := range rows {
			bad[h] = p
		}
		row := bad[domain.HorizonLong]
		row.TPPct = 1.5
		bad[domain.HorizonLong] = row
		_, err := NewTable(bad)
		assert.Error(t, err)
	})
}
