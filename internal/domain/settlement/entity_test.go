package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewItem(t *testing.T) {
	item := NewItem(100, 30900, 0.015, 0.017, 0.1)

	assert.Equal(t, int64(464), item.PlatformFee)
	assert.Equal(t, int64(525), item.PgFee)
	assert.Equal(t, int64(46), item.Vat) // 464 * 0.1 = 46.4 -> 46
	assert.Equal(t, int64(29865), item.SettlementAmount)

	// VAT applied once, on top of the engine split
	assert.Equal(t, item.SalesAmount,
		item.SettlementAmount+item.PlatformFee+item.PgFee+item.Vat)
}

func TestNewItem_SnapshotsRates(t *testing.T) {
	item := NewItem(100, 50000, 0.02, 0.03, 0.1)

	assert.Equal(t, 0.02, item.PlatformFeeRate)
	assert.Equal(t, 0.03, item.PgFeeRate)
	assert.Equal(t, 0.1, item.VatRate)
}

func TestAddItem_FoldsTotals(t *testing.T) {
	s := &Settlement{Status: StatusPending}

	s.AddItem(NewItem(1, 30900, 0.015, 0.017, 0.1))
	s.AddItem(NewItem(2, 10000, 0.015, 0.017, 0.1))

	assert.Len(t, s.Items, 2)
	assert.Equal(t, int64(40900), s.TotalSalesAmount)
	assert.Equal(t, s.TotalSalesAmount,
		s.TotalSettlementAmount+s.TotalPlatformFee+s.TotalPgFee+s.TotalVat)
}

func TestApprovable(t *testing.T) {
	s := &Settlement{Status: StatusPending}
	assert.False(t, s.Approvable(), "empty settlement has nothing to pay")

	s.AddItem(NewItem(1, 30900, 0.015, 0.017, 0.1))
	assert.True(t, s.Approvable())

	s.Status = StatusCompleted
	assert.False(t, s.Approvable())
}
