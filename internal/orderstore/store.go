// Package orderstore is the reference remote order store: version-checked
// order documents over the order_header, order_line and order_payment
// tables, plus a per-terminal daily invoice sequence.
package orderstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordersync/internal/clock"
	"github.com/smallbiznis/ordersync/internal/normalize"
	"github.com/smallbiznis/ordersync/internal/order/domain"
	"github.com/smallbiznis/ordersync/pkg/db"
	"github.com/smallbiznis/ordersync/pkg/db/pagination"
	"github.com/smallbiznis/ordersync/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Normalizer *normalize.Normalizer
}

type Store struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	normalizer *normalize.Normalizer
	headers    repository.Repository[headerRecord]
}

var _ domain.RemoteStore = (*Store)(nil)

func New(p Params) *Store {
	return &Store{
		db:         p.DB,
		log:        p.Log.Named("orderstore"),
		clock:      p.Clock,
		genID:      p.GenID,
		normalizer: p.Normalizer,
		headers:    repository.ProvideStore[headerRecord](p.DB),
	}
}

// AutoMigrate creates the store tables. Postgres deployments use the
// embedded migrations instead.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&headerRecord{}, &lineRecord{}, &paymentRecord{}, &invoiceSequence{})
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	h, err := s.headers.FindOne(ctx, &headerRecord{ID: id})
	if err != nil {
		return nil, classify("get_order", err)
	}
	if h == nil {
		return nil, nil
	}
	orders, err := s.hydrate(ctx, s.db, []*headerRecord{h})
	if err != nil {
		return nil, classify("get_order", err)
	}
	return &orders[0], nil
}

// ListOrders returns every order matching filter. A positive Limit returns
// a single page starting at PageToken.
func (s *Store) ListOrders(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	if filter.Limit > 0 {
		orders, _, err := s.ListPage(ctx, filter)
		return orders, err
	}

	var out []domain.Order
	filter.Limit = pagination.MaxPageSize
	for {
		orders, info, err := s.ListPage(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, orders...)
		if !info.HasMore {
			return out, nil
		}
		filter.PageToken = info.NextPageToken
	}
}

// ListPage returns one page of orders ordered by creation time.
func (s *Store) ListPage(ctx context.Context, filter domain.ListFilter) ([]domain.Order, pagination.PageInfo, error) {
	limit := pagination.Pagination{PageSize: filter.Limit}.Size()
	cursor, err := pagination.DecodeCursor(filter.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	scopes := []repository.Scope{
		repository.OrderBy("created_at ASC, id ASC"),
		repository.Limit(limit + 1),
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		scopes = append(scopes, repository.Where("status IN ?", statuses))
	}
	if !filter.UpdatedSince.IsZero() {
		scopes = append(scopes, repository.Where("updated_at >= ?", filter.UpdatedSince))
	}
	if cursor != nil {
		scopes = append(scopes, repository.Where(
			"(created_at > ? OR (created_at = ? AND id > ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		))
	}

	headers, err := s.headers.Find(ctx, &headerRecord{PosID: filter.PosID, ShiftID: filter.ShiftID}, scopes...)
	if err != nil {
		return nil, pagination.PageInfo{}, classify("list_orders", err)
	}
	headers, info, err := pagination.Page(headers, limit, func(h *headerRecord) pagination.Cursor {
		return pagination.Cursor{ID: h.ID, CreatedAt: h.CreatedAt}
	})
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	orders, err := s.hydrate(ctx, s.db, headers)
	if err != nil {
		return nil, pagination.PageInfo{}, classify("list_orders", err)
	}
	return orders, info, nil
}

// SaveOrder writes req.Order. Updates are conditional on the stored version
// matching ExpectedVersion and bump it by one.
func (s *Store) SaveOrder(ctx context.Context, req domain.SaveRequest) (domain.Order, error) {
	order := req.Order
	if strings.TrimSpace(order.ID) == "" || domain.IsDraftID(order.ID) {
		return domain.Order{}, fmt.Errorf("save order: %w", domain.ErrInvalidOrderID)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.clock.Now()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	var saved domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if req.Insert {
			saved, err = s.insert(ctx, tx, order)
		} else {
			saved, err = s.update(ctx, tx, order, req.ExpectedVersion)
		}
		return err
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) || errors.Is(err, domain.ErrIDCollision) ||
			errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrOrderFinalized) {
			return domain.Order{}, err
		}
		return domain.Order{}, classify("save_order", err)
	}

	s.log.Debug("order stored",
		zap.String("order_id", saved.ID),
		zap.Int64("version", saved.Version()),
		zap.Bool("insert", req.Insert),
	)
	return saved, nil
}

func (s *Store) insert(ctx context.Context, tx *gorm.DB, order domain.Order) (domain.Order, error) {
	headers := s.headers.WithTrx(tx)
	existing, err := headers.FindOne(ctx, &headerRecord{ID: order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	if existing != nil {
		return domain.Order{}, domain.ErrIDCollision
	}

	h := toHeader(order, 1)
	if err := headers.Create(ctx, &h); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Order{}, domain.ErrIDCollision
		}
		return domain.Order{}, err
	}
	if err := writeChildren(tx, order); err != nil {
		return domain.Order{}, err
	}
	return s.reload(ctx, tx, order.ID)
}

func (s *Store) update(ctx context.Context, tx *gorm.DB, order domain.Order, expected int64) (domain.Order, error) {
	h := toHeader(order, expected+1)
	affected, err := s.headers.WithTrx(tx).Updates(ctx, &h,
		repository.Where("id = ? AND version = ? AND finalized = ?", order.ID, expected, false),
		repository.Select("*"),
		repository.Omit("id", "created_at"),
	)
	if err != nil {
		return domain.Order{}, err
	}
	if affected == 0 {
		current, err := s.headers.WithTrx(tx).FindOne(ctx, &headerRecord{ID: order.ID})
		if err != nil {
			return domain.Order{}, err
		}
		if current == nil {
			return domain.Order{}, domain.ErrNotFound
		}
		remote, err := s.hydrate(ctx, tx, []*headerRecord{current})
		if err != nil {
			return domain.Order{}, err
		}
		if current.Version == expected && current.Finalized {
			return domain.Order{}, domain.ErrOrderFinalized
		}
		return domain.Order{}, &domain.ConflictError{OrderID: order.ID, ExpectedVersion: expected, Remote: &remote[0]}
	}

	if err := tx.Where("order_id = ?", order.ID).Delete(&lineRecord{}).Error; err != nil {
		return domain.Order{}, err
	}
	if err := tx.Where("order_id = ?", order.ID).Delete(&paymentRecord{}).Error; err != nil {
		return domain.Order{}, err
	}
	if err := writeChildren(tx, order); err != nil {
		return domain.Order{}, err
	}
	return s.reload(ctx, tx, order.ID)
}

func writeChildren(tx *gorm.DB, order domain.Order) error {
	if lines := toLines(order); len(lines) > 0 {
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
	}
	if payments := toPayments(order); len(payments) > 0 {
		if err := tx.Create(&payments).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) reload(ctx context.Context, tx *gorm.DB, id string) (domain.Order, error) {
	h, err := s.headers.WithTrx(tx).FindOne(ctx, &headerRecord{ID: id})
	if err != nil {
		return domain.Order{}, err
	}
	if h == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	orders, err := s.hydrate(ctx, tx, []*headerRecord{h})
	if err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// hydrate joins headers with their lines and payments through the
// normalizer, preserving header order.
func (s *Store) hydrate(ctx context.Context, conn *gorm.DB, headers []*headerRecord) ([]domain.Order, error) {
	if len(headers) == 0 {
		return []domain.Order{}, nil
	}
	ids := make([]string, len(headers))
	for i, h := range headers {
		ids[i] = h.ID
	}

	var lines []lineRecord
	if err := conn.WithContext(ctx).Where("order_id IN ?", ids).Order("order_id, position").Find(&lines).Error; err != nil {
		return nil, err
	}
	var payments []paymentRecord
	if err := conn.WithContext(ctx).Where("order_id IN ?", ids).Order("order_id, position").Find(&payments).Error; err != nil {
		return nil, err
	}

	lineRows := make(map[string][]normalize.Row, len(headers))
	for _, l := range lines {
		lineRows[l.OrderID] = append(lineRows[l.OrderID], l.row())
	}
	paymentRows := make(map[string][]normalize.Row, len(headers))
	for _, p := range payments {
		paymentRows[p.OrderID] = append(paymentRows[p.OrderID], p.row())
	}

	out := make([]domain.Order, 0, len(headers))
	for _, h := range headers {
		order, err := s.normalizer.FromRows(h.row(), lineRows[h.ID], paymentRows[h.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

// NextInvoiceNumber issues INV/<pos>/<yyyymmdd>/<seq> from a per-day
// counter and a fresh snowflake order id.
func (s *Store) NextInvoiceNumber(ctx context.Context, posID string) (domain.InvoiceNumber, error) {
	day := s.clock.Now().Format("20060102")
	var seq int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := invoiceSequence{PosID: posID, Day: day}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&invoiceSequence{}).
			Where("pos_id = ? AND day = ?", posID, day).
			UpdateColumn("seq", gorm.Expr("seq + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&invoiceSequence{}).
			Where("pos_id = ? AND day = ?", posID, day).
			Pluck("seq", &seq).Error
	})
	if err != nil {
		return domain.InvoiceNumber{}, classify("next_invoice_number", err)
	}
	return domain.InvoiceNumber{
		Value: fmt.Sprintf("INV/%s/%s/%04d", posID, day, seq),
		ID:    s.genID.Generate().String(),
	}, nil
}

// classify marks connection-level failures as transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if db.IsTransientErr(err) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
