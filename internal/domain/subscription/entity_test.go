package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func validParams() NewParams {
	return NewParams{
		BuyerID:         42,
		ContentID:       7,
		PurchaseID:      100,
		OptionID:        3,
		OptionName:      "monthly coaching",
		OptionPrice:     30900,
		BillingKey:      "bk_1234567890abcdef",
		NextBillingDate: testNow.AddDate(0, 1, 0),
	}
}

func TestNew(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, 0, sub.BillingRetryCount)
	assert.Equal(t, testNow, sub.ActivatedAt)
	assert.True(t, sub.LastBillingAttemptAt.Valid)
	assert.True(t, sub.LastBillingSucceededAt.Valid)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewParams)
	}{
		{"missing buyer", func(p *NewParams) { p.BuyerID = 0 }},
		{"blank billing key", func(p *NewParams) { p.BillingKey = "   " }},
		{"zero next billing date", func(p *NewParams) { p.NextBillingDate = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := New(p, testNow)
			assert.Error(t, err)
		})
	}
}

func TestMarkBillingFailure(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)

	sub.MarkBillingFailure(testNow, "card declined")
	sub.MarkBillingFailure(testNow.Add(time.Hour), "card declined")
	sub.MarkBillingFailure(testNow.Add(2*time.Hour), "insufficient funds")

	assert.Equal(t, StatusPastDue, sub.Status)
	assert.Equal(t, 3, sub.BillingRetryCount)
	assert.Equal(t, "insufficient funds", sub.LastFailureReason.String)
}

func TestMarkBillingFailure_NoOpWhenCancelled(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)
	sub.MarkCancelled(time.Time{}, testNow)

	sub.MarkBillingFailure(testNow, "card declined")

	assert.Equal(t, StatusCancelled, sub.Status)
	assert.Equal(t, 0, sub.BillingRetryCount)
	assert.False(t, sub.LastFailureReason.Valid)
}

func TestMarkBillingSuccess_RestoresActiveAndIsIdempotent(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)
	sub.MarkBillingFailure(testNow, "card declined")
	sub.StartGracePeriod(testNow, 7)

	for i := 0; i < 2; i++ {
		sub.MarkBillingSuccess(testNow.Add(time.Hour))

		assert.Equal(t, StatusActive, sub.Status)
		assert.Equal(t, 0, sub.BillingRetryCount)
		assert.False(t, sub.LastFailureReason.Valid)
		assert.False(t, sub.GracePeriodEndsAt.Valid)
	}
}

func TestRenew(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)
	sub.MarkBillingFailure(testNow, "card declined")

	later := testNow.AddDate(0, 1, 0)
	p := validParams()
	p.PurchaseID = 200
	p.BillingKey = "bk_fedcba0987654321"
	p.NextBillingDate = later.AddDate(0, 1, 0)

	require.NoError(t, sub.Renew(p, later))

	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, int64(200), sub.PurchaseID)
	assert.Equal(t, "bk_fedcba0987654321", sub.BillingKey)
	assert.Equal(t, 0, sub.BillingRetryCount)
	assert.Equal(t, later.AddDate(0, 1, 0), sub.NextBillingDate.Time)
}

func TestMarkCancelled_DefaultsToNow(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)
	sub.MarkBillingFailure(testNow, "card declined")
	sub.StartGracePeriod(testNow, 7)

	sub.MarkCancelled(time.Time{}, testNow)

	assert.Equal(t, StatusCancelled, sub.Status)
	assert.Equal(t, testNow, sub.CancelledAt.Time)
	assert.Equal(t, 0, sub.BillingRetryCount)
	assert.False(t, sub.GracePeriodEndsAt.Valid)
}

func TestResume(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)
	sub.MarkCancelled(time.Time{}, testNow)

	t.Run("blank billing key rejected", func(t *testing.T) {
		assert.Error(t, sub.Resume("  ", testNow.AddDate(0, 1, 0), testNow))
	})

	t.Run("zero next billing date rejected", func(t *testing.T) {
		assert.Error(t, sub.Resume("bk_new", time.Time{}, testNow))
	})

	t.Run("valid resume", func(t *testing.T) {
		next := testNow.AddDate(0, 1, 0)
		require.NoError(t, sub.Resume("bk_new", next, testNow))

		assert.Equal(t, StatusActive, sub.Status)
		assert.Equal(t, 0, sub.BillingRetryCount)
		assert.False(t, sub.CancelledAt.Valid)
		assert.False(t, sub.LastBillingAttemptAt.Valid)
		assert.Equal(t, next, sub.NextBillingDate.Time)
	})

	t.Run("active subscription cannot resume", func(t *testing.T) {
		assert.Error(t, sub.Resume("bk_other", testNow.AddDate(0, 2, 0), testNow))
	})
}

func TestGracePeriod(t *testing.T) {
	sub, err := New(validParams(), testNow)
	require.NoError(t, err)

	assert.False(t, sub.IsGracePeriodActive(testNow))

	sub.StartGracePeriod(testNow, 7)
	assert.True(t, sub.IsGracePeriodActive(testNow))
	assert.True(t, sub.IsGracePeriodActive(testNow.AddDate(0, 0, 7))) // boundary inclusive
	assert.False(t, sub.IsGracePeriodActive(testNow.AddDate(0, 0, 7).Add(time.Second)))

	sub.ClearGracePeriod()
	assert.False(t, sub.IsGracePeriodActive(testNow))
}

func TestCanAttemptBilling(t *testing.T) {
	today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	newDue := func() *Subscription {
		p := validParams()
		p.NextBillingDate = today
		sub, err := New(p, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		return sub
	}

	t.Run("cancelled never eligible", func(t *testing.T) {
		sub := newDue()
		sub.MarkCancelled(time.Time{}, now)
		assert.False(t, sub.CanAttemptBilling(today, now, 0))
	})

	t.Run("future billing date not due", func(t *testing.T) {
		sub := newDue()
		sub.NextBillingDate.Time = today.AddDate(0, 0, 1)
		assert.False(t, sub.CanAttemptBilling(today, now, 0))
	})

	t.Run("nil billing date not due", func(t *testing.T) {
		sub := newDue()
		sub.NextBillingDate.Valid = false
		assert.False(t, sub.CanAttemptBilling(today, now, 0))
	})

	t.Run("no prior attempt eligible immediately", func(t *testing.T) {
		sub := newDue()
		sub.LastBillingAttemptAt.Valid = false
		assert.True(t, sub.CanAttemptBilling(today, now, 30))
	})

	t.Run("retry interval spacing", func(t *testing.T) {
		sub := newDue()
		sub.MarkBillingFailure(now.Add(-10*time.Minute), "card declined")

		assert.False(t, sub.CanAttemptBilling(today, now, 30))
		assert.True(t, sub.CanAttemptBilling(today, now, 5))
		assert.True(t, sub.CanAttemptBilling(today, now, 0))
	})
}
