package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() Order {
	return Order{
		ID:     "draft-1",
		Type:   OrderTypeDineIn,
		Tables: []string{"T1"},
		Lines: []Line{{
			ID:             "l1",
			ItemID:         "latte",
			Quantity:       decimal.NewFromInt(2),
			BasePrice:      decimal.NewFromInt(10),
			KitchenSection: "bar",
			Modifiers:      []Modifier{{Type: ModifierAddOn, Delta: decimal.NewFromInt(1)}},
		}},
		Totals: Totals{Due: decimal.NewFromInt(20)},
		State:  Draft{},
	}
}

func TestIsDraftID(t *testing.T) {
	assert.True(t, IsDraftID(""))
	assert.True(t, IsDraftID("draft-01HZX"))
	assert.True(t, IsDraftID("POS1-1718000000000-001"))
	assert.False(t, IsDraftID("1790000000000000000"))
	assert.False(t, IsDraftID("pos1-1718000000000-001"))
	assert.False(t, IsDraftID("POS1-171800-001"))

	id := NewDraftID(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.True(t, IsDraftID(id))
}

func TestStateFlags(t *testing.T) {
	o := sampleOrder()
	assert.True(t, o.IsDraft())
	assert.True(t, o.IsDirty())
	assert.False(t, o.IsPersisted())
	assert.Equal(t, int64(0), o.Version())

	o.State = Saved{Version: 4}
	assert.True(t, o.IsPersisted())
	assert.False(t, o.IsDirty())
	o.Touch(time.Now())
	assert.Equal(t, Saved{Version: 4, Dirty: true}, o.State)
	assert.Equal(t, int64(4), o.Version())

	o.State = Finalized{Version: 5}
	assert.True(t, o.IsFinalized())
	assert.False(t, o.IsDirty())
	assert.Equal(t, "finalized", StateName(o.State))
}

func TestCloneDoesNotAlias(t *testing.T) {
	o := sampleOrder()
	o.Discount = &Discount{Type: DiscountPercent, Value: decimal.NewFromInt(10)}
	c := o.Clone()

	c.Lines[0].Modifiers[0].Name = "changed"
	c.Tables[0] = "T9"
	c.Discount.Value = decimal.NewFromInt(50)

	assert.Equal(t, "", o.Lines[0].Modifiers[0].Name)
	assert.Equal(t, "T1", o.Tables[0])
	assert.True(t, o.Discount.Value.Equal(decimal.NewFromInt(10)))
}

func TestValidateCollectsHardStops(t *testing.T) {
	o := sampleOrder()
	require.NoError(t, Validate(o))

	o.Tables = nil
	o.Lines[0].ItemID = ""
	o.Lines[0].KitchenSection = ""
	err := Validate(o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingTable))
	assert.True(t, errors.Is(err, ErrMissingItem))
	assert.True(t, errors.Is(err, ErrMissingSection))

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs.Errors, 3)
}

func TestValidateEmptyAndZeroDue(t *testing.T) {
	o := Order{Type: OrderTypeTakeaway, State: Draft{}}
	err := Validate(o)
	assert.True(t, errors.Is(err, ErrEmptyOrder))
	assert.True(t, errors.Is(err, ErrNonPositiveDue))

	o.State = Saved{Version: 2}
	err = Validate(o)
	assert.True(t, errors.Is(err, ErrEmptyOrder))
	assert.False(t, errors.Is(err, ErrNonPositiveDue))
}

func TestValidateDelivery(t *testing.T) {
	o := sampleOrder()
	o.Type = OrderTypeDelivery
	err := Validate(o)
	assert.True(t, errors.Is(err, ErrMissingCustomer))
	assert.True(t, errors.Is(err, ErrMissingAddress))

	o.Customer = Customer{ID: "c1", Address: "Jl. Merdeka 1"}
	assert.NoError(t, Validate(o))
}

func TestTypedErrors(t *testing.T) {
	remote := sampleOrder()
	remote.State = Saved{Version: 7}
	conflict := &ConflictError{OrderID: "o1", ExpectedVersion: 6, Remote: &remote}
	assert.True(t, errors.Is(conflict, ErrVersionConflict))
	assert.Contains(t, conflict.Error(), "v7")

	transient := &TransientError{Op: "get_order", Err: errors.New("timeout")}
	assert.True(t, errors.Is(transient, ErrTransient))

	fatal := Fatal(ErrMissingShift)
	assert.True(t, errors.Is(fatal, ErrFatal))
	assert.True(t, errors.Is(fatal, ErrMissingShift))
}
