package order

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewStore(WithClock(func() time.Time { return testNow }))
}

func outcome(_ Order, res Outcome) Outcome { return res }

func pizza() []LineItem {
	return []LineItem{{
		ItemID:   "PROD-001",
		Name:     "Pizza",
		Quantity: 2,
		Price:    decimal.RequireFromString("12.99"),
	}}
}

func burger() []LineItem {
	return []LineItem{{
		ItemID:   "PROD-002",
		Name:     "Burger",
		Quantity: 1,
		Price:    decimal.RequireFromString("9.99"),
	}}
}

// --- Tests ---

func TestStore_Place(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, StatusPlaced, o.Status)
	assert.Equal(t, "John Doe", o.Name)
	assert.Equal(t, "john@example.com", o.Email)
	assert.Equal(t, "123 Main St", o.Address)
	assert.Equal(t, testNow.Add(30*time.Minute), o.DeliveryTime)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "PROD-001", o.Items[0].ItemID)
	assert.True(t, decimal.RequireFromString("12.99").Equal(o.Items[0].Price))
}

func TestStore_Place_RealClock(t *testing.T) {
	s := NewStore()

	before := time.Now()
	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	assert.WithinDuration(t, before.Add(DeliveryWindow), o.DeliveryTime, 5*time.Second)
}

func TestStore_Place_IDsIncrease(t *testing.T) {
	s := newTestStore()

	var last int64
	for i := range 10 {
		o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
		require.NoError(t, err)
		assert.Greater(t, o.ID, last, "order %d", i)
		last = o.ID
	}
	assert.Equal(t, int64(10), last)
}

func TestStore_Place_IDsNotReusedAfterCancel(t *testing.T) {
	s := newTestStore()

	first, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)
	require.True(t, s.Cancel("john@example.com", first.ID))

	second, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)
}

func TestStore_Place_Concurrent(t *testing.T) {
	s := newTestStore()

	const n = 200
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
			if err == nil {
				ids <- o.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, s.Len())
}

func TestStore_Place_Validation(t *testing.T) {
	tests := []struct {
		name    string
		oName   string
		email   string
		address string
		items   []LineItem
		wantErr error
		field   string
		index   int
	}{
		{
			name:    "missing name",
			email:   "john@example.com",
			address: "123 Main St",
			items:   pizza(),
			wantErr: ErrRequiredFields,
			field:   "name",
			index:   -1,
		},
		{
			name:    "missing email",
			oName:   "John Doe",
			address: "123 Main St",
			items:   pizza(),
			wantErr: ErrRequiredFields,
			field:   "email",
			index:   -1,
		},
		{
			name:    "missing address",
			oName:   "John Doe",
			email:   "john@example.com",
			items:   pizza(),
			wantErr: ErrRequiredFields,
			field:   "address",
			index:   -1,
		},
		{
			name:    "items omitted",
			oName:   "John Doe",
			email:   "john@example.com",
			address: "123 Main St",
			items:   nil,
			wantErr: ErrRequiredFields,
			field:   "items",
			index:   -1,
		},
		{
			name:    "item without id",
			oName:   "John Doe",
			email:   "john@example.com",
			address: "123 Main St",
			items:   []LineItem{{Name: "Burger", Quantity: 1, Price: decimal.NewFromInt(5)}},
			wantErr: ErrInvalidItem,
			field:   "itemId",
			index:   0,
		},
		{
			name:    "item without name",
			oName:   "John Doe",
			email:   "john@example.com",
			address: "123 Main St",
			items:   append(pizza(), LineItem{ItemID: "PROD-002", Quantity: 1}),
			wantErr: ErrInvalidItem,
			field:   "name",
			index:   1,
		},
		{
			name:    "zero quantity",
			oName:   "John Doe",
			email:   "john@example.com",
			address: "123 Main St",
			items:   []LineItem{{ItemID: "PROD-001", Name: "Pizza", Quantity: 0, Price: decimal.NewFromInt(5)}},
			wantErr: ErrInvalidItem,
			field:   "quantity",
			index:   0,
		},
		{
			name:    "negative price",
			oName:   "John Doe",
			email:   "john@example.com",
			address: "123 Main St",
			items:   []LineItem{{ItemID: "PROD-001", Name: "Pizza", Quantity: 1, Price: decimal.NewFromInt(-1)}},
			wantErr: ErrInvalidItem,
			field:   "price",
			index:   0,
		},
	}
	for _, price := range []string{"1e50000000", "1e-50000000", "1000000000", "12.999", "0.001"} {
		tests = append(tests, struct {
			name    string
			oName   string
			email   string
			address string
			items   []LineItem
			wantErr error
			field   string
			index   int
		}{
			name:    "price " + price,
			oName:   "John Doe",
			email:   "john@example.com",
			address: "123 Main St",
			items: []LineItem{
				pizza()[0],
				{ItemID: "PROD-002", Name: "Cola", Quantity: 1, Price: decimal.RequireFromString(price)},
			},
			wantErr: ErrInvalidItem,
			field:   "price",
			index:   1,
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()

			_, err := s.Place(tt.oName, tt.email, tt.address, tt.items)
			require.ErrorIs(t, err, tt.wantErr)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, tt.index, vErr.Index)
			assert.Zero(t, s.Len(), "rejected order must not be stored")
		})
	}
}

func TestStore_Place_EmptyItemsAllowed(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", []LineItem{})
	require.NoError(t, err)
	assert.Empty(t, o.Items)
}

func TestStore_Place_PriceBounds(t *testing.T) {
	for _, price := range []string{"0", "0.5", "12.99", "12.990", "999999999.99", "1e2"} {
		t.Run(price, func(t *testing.T) {
			s := newTestStore()

			o, err := s.Place("John Doe", "john@example.com", "123 Main St", []LineItem{
				{ItemID: "PROD-001", Name: "Pizza", Quantity: 1, Price: decimal.RequireFromString(price)},
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(o.Items[0].Price.String()), MaxPriceDigits+1+PriceScale)
		})
	}
}

func TestStore_Place_FreeItemAllowed(t *testing.T) {
	s := newTestStore()

	_, err := s.Place("John Doe", "john@example.com", "123 Main St", []LineItem{
		{ItemID: "PROD-009", Name: "Water", Quantity: 1, Price: decimal.Zero},
	})
	require.NoError(t, err)
}

func TestStore_ByEmail(t *testing.T) {
	s := newTestStore()

	_, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)
	_, err = s.Place("Jane Doe", "jane@example.com", "456 Main St", burger())
	require.NoError(t, err)
	_, err = s.Place("John Doe", "john@example.com", "123 Main St", burger())
	require.NoError(t, err)

	orders := s.ByEmail("john@example.com")
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Equal(t, int64(3), orders[1].ID)

	assert.Empty(t, s.ByEmail("JOHN@example.com"), "email match is case-sensitive")
	assert.Empty(t, s.ByEmail("nobody@example.com"))
	assert.Empty(t, s.ByEmail(""))
	assert.NotNil(t, s.ByEmail("nobody@example.com"))
}

func TestStore_All_ExcludesCancelled(t *testing.T) {
	s := newTestStore()

	john, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)
	_, err = s.Place("Jane Doe", "jane@example.com", "456 Main St", burger())
	require.NoError(t, err)

	require.True(t, s.Cancel("john@example.com", john.ID))

	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, "jane@example.com", all[0].Email)
	assert.Empty(t, s.ByEmail("john@example.com"))
}

func TestStore_Cancel(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	assert.True(t, s.Cancel("john@example.com", o.ID))
	assert.False(t, s.Cancel("john@example.com", o.ID), "second cancel must fail")

	got, ok := s.Get(o.ID)
	require.True(t, ok, "cancelled orders stay reachable by id")
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, pizza(), got.Items)
}

func TestStore_Outcomes(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotFound, outcome(s.cancel("john@example.com", 999)))
	assert.Equal(t, OutcomeForbidden, outcome(s.cancel("jane@example.com", o.ID)))
	assert.Equal(t, OutcomeOK, outcome(s.cancel("john@example.com", o.ID)))
	assert.Equal(t, OutcomeCancelled, outcome(s.cancel("john@example.com", o.ID)))

	assert.Equal(t, OutcomeNotFound, outcome(s.modifyAddress("john@example.com", 999, "x")))
	assert.Equal(t, OutcomeCancelled, outcome(s.modifyAddress("john@example.com", o.ID, "x")))
}

func TestStore_OwnershipIsolation(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	assert.False(t, s.Cancel("jane@example.com", o.ID))
	assert.False(t, s.ModifyAddress("jane@example.com", o.ID, "666 Evil St"))

	got, ok := s.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPlaced, got.Status)
	assert.Equal(t, "123 Main St", got.Address)
}

func TestStore_ModifyAddress(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	require.True(t, s.ModifyAddress("john@example.com", o.ID, "456 New St"))

	got, ok := s.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, "456 New St", got.Address)
	assert.Equal(t, o.DeliveryTime, got.DeliveryTime)
	assert.Equal(t, o.Items, got.Items)
	assert.Equal(t, StatusPlaced, got.Status)
}

func TestStore_ChangeReturnsSnapshot(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	moved, res := s.modifyAddress("john@example.com", o.ID, "456 New St")
	require.Equal(t, OutcomeOK, res)
	assert.Equal(t, "456 New St", moved.Address)

	cancelled, res := s.cancel("john@example.com", o.ID)
	require.Equal(t, OutcomeOK, res)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Later changes do not reach an earlier snapshot.
	assert.Equal(t, StatusPlaced, moved.Status)
	moved.Items[0].Quantity = 99
	got, ok := s.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, pizza(), got.Items)
}

func TestStore_ModifyAddress_EmptyStore(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.ModifyAddress("john@example.com", 999, "456 New St"))
}

func TestStore_ResultsDoNotAlias(t *testing.T) {
	s := newTestStore()

	items := pizza()
	o, err := s.Place("John Doe", "john@example.com", "123 Main St", items)
	require.NoError(t, err)

	items[0].Name = "Changed by caller"
	o.Items[0].Quantity = 99
	all := s.All()
	all[0].Items[0].ItemID = "HACKED"
	all[0].Address = "elsewhere"

	got, ok := s.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, pizza(), got.Items)
	assert.Equal(t, "123 Main St", got.Address)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore()

	_, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)
	_, err = s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	s.Reset()

	assert.Zero(t, s.Len())
	assert.Empty(t, s.All())
	assert.Empty(t, s.ByEmail("john@example.com"))

	o, err := s.Place("Jane Doe", "jane@example.com", "456 Main St", burger())
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.ID)
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	s := newTestStore()

	o, err := s.Place("John Doe", "john@example.com", "123 Main St", pizza())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.ModifyAddress("john@example.com", o.ID, "addr")
			_, _ = s.Place("Jane Doe", "jane@example.com", "456 Main St", burger())
		}()
		go func() {
			defer wg.Done()
			for _, got := range s.All() {
				assert.NotEmpty(t, got.Address)
			}
			_ = s.ByEmail("john@example.com")
		}()
	}
	wg.Wait()

	assert.Equal(t, 51, s.Len())
}
