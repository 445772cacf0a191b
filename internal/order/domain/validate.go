package domain

import "strings"

// Validate collects every hard stop that must never reach the network.
// Totals are expected to be priced already.
func Validate(o Order) error {
	errs := &ValidationErrors{}

	if len(o.Lines) == 0 {
		errs.Add("lines", "", ErrEmptyOrder)
	}
	if !o.Type.Valid() {
		errs.Add("order_type", "", ErrInvalidOrderType)
	}
	if o.IsDraft() && !o.Totals.Due.IsPositive() {
		errs.Add("totals.due", "", ErrNonPositiveDue)
	}

	switch o.Type {
	case OrderTypeDineIn:
		if len(o.Tables) == 0 {
			errs.Add("table_ids", "", ErrMissingTable)
		}
	case OrderTypeDelivery:
		if strings.TrimSpace(o.Customer.ID) == "" && strings.TrimSpace(o.Customer.Name) == "" {
			errs.Add("customer", "", ErrMissingCustomer)
		}
		if strings.TrimSpace(o.Customer.Address) == "" {
			errs.Add("delivery_address", "", ErrMissingAddress)
		}
	}

	for _, line := range o.Lines {
		if strings.TrimSpace(line.ItemID) == "" {
			errs.Add("item_id", line.ID, ErrMissingItem)
		}
		if strings.TrimSpace(line.KitchenSection) == "" {
			errs.Add("kitchen_section", line.ID, ErrMissingSection)
		}
	}

	return errs.OrNil()
}
