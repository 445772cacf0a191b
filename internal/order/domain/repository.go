package domain

import (
	"context"
	"time"
)

type ListFilter struct {
	PosID        string
	ShiftID      string
	Statuses     []Status
	UpdatedSince time.Time
	PageToken    string
	Limit        int
}

// SaveRequest is a version-checked write. Insert marks a first save of a
// freshly allocated id; inserts must never be retried automatically.
type SaveRequest struct {
	Order           Order
	ExpectedVersion int64
	Insert          bool
}

type InvoiceNumber struct {
	Value string
	ID    string
}

// RemoteStore is the authoritative order store.
//
// SaveOrder returns the stored order with its new version. A stale
// ExpectedVersion fails with *ConflictError. An insert whose id already
// exists fails with ErrIDCollision. Network failures are *TransientError.
type RemoteStore interface {
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	SaveOrder(ctx context.Context, req SaveRequest) (Order, error)
	NextInvoiceNumber(ctx context.Context, posID string) (InvoiceNumber, error)
}
