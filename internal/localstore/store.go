// Package localstore is the on-device key-value store for shift records,
// draft snapshots and the kitchen dispatch ledger. Every caller must work
// when Available reports false.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/ordersync/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SchemaVersion is stamped on every record. Records written under another
// version are ignored on read.
const SchemaVersion = 1

var ErrUnavailable = errors.New("local_store_unavailable")

type Record struct {
	Namespace     string         `gorm:"primaryKey;type:text"`
	Key           string         `gorm:"column:record_key;primaryKey;type:text"`
	SchemaVersion int            `gorm:"not null"`
	Payload       datatypes.JSON `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (Record) TableName() string { return "local_records" }

type Store interface {
	Available() bool
	Put(ctx context.Context, namespace, key string, value any) error
	Get(ctx context.Context, namespace, key string, out any) (bool, error)
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) ([]Record, error)
}

type gormStore struct {
	log     *zap.Logger
	records repository.Repository[Record]
	now     func() time.Time
}

// NewGormStore migrates the record table on db and returns a store backed by it.
func NewGormStore(db *gorm.DB, log *zap.Logger, now func() time.Time) (Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate local_records: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &gormStore{
		log:     log.Named("localstore"),
		records: repository.ProvideStore[Record](db),
		now:     now,
	}, nil
}

func (s *gormStore) Available() bool { return true }

func (s *gormStore) Put(ctx context.Context, namespace, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	return s.records.Save(ctx, &Record{
		Namespace:     namespace,
		Key:           key,
		SchemaVersion: SchemaVersion,
		Payload:       datatypes.JSON(payload),
		UpdatedAt:     s.now().UTC(),
	})
}

func (s *gormStore) Get(ctx context.Context, namespace, key string, out any) (bool, error) {
	rec, err := s.records.FindOne(ctx, &Record{Namespace: namespace, Key: key})
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if rec.SchemaVersion != SchemaVersion {
		s.log.Warn("record with foreign schema ignored",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Int("schema_version", rec.SchemaVersion),
		)
		return false, nil
	}
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (s *gormStore) Delete(ctx context.Context, namespace, key string) error {
	return s.records.Delete(ctx, &Record{Namespace: namespace, Key: key})
}

func (s *gormStore) List(ctx context.Context, namespace string) ([]Record, error) {
	found, err := s.records.Find(ctx, &Record{Namespace: namespace, SchemaVersion: SchemaVersion}, repository.OrderBy("record_key"))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(found))
	for _, rec := range found {
		out = append(out, *rec)
	}
	return out, nil
}

// Noop is the store used when no durable storage exists on the device.
type Noop struct{}

func (Noop) Available() bool { return false }

func (Noop) Put(context.Context, string, string, any) error { return nil }

func (Noop) Get(context.Context, string, string, any) (bool, error) { return false, nil }

func (Noop) Delete(context.Context, string, string) error { return nil }

func (Noop) List(context.Context, string) ([]Record, error) { return nil, nil }
