package repository

import (
	"context"

	"gorm.io/gorm"
)

// Scope narrows or orders a query.
type Scope func(*gorm.DB) *gorm.DB

type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, scopes ...Scope) ([]*T, error)
	FindOne(ctx context.Context, query *T, scopes ...Scope) (*T, error)
	Create(ctx context.Context, resource *T) error
	Save(ctx context.Context, resource *T) error
	// Updates writes the non-zero fields of values (or the columns picked by
	// Select) on every row the scopes match and reports how many changed.
	Updates(ctx context.Context, values *T, scopes ...Scope) (int64, error)
	Delete(ctx context.Context, query *T) error
	Count(ctx context.Context, query *T) (int64, error)
}

func OrderBy(clause string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Order(clause) }
}

func Limit(n int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if n <= 0 {
			return db
		}
		return db.Limit(n)
	}
}

func Where(query any, args ...any) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}

func Select(columns ...string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Select(columns) }
}

func Omit(columns ...string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Omit(columns...) }
}
