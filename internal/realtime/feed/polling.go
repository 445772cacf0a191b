package feed

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/smallbiznis/ordersync/internal/normalize"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PollingConfig controls the database-backed feed.
type PollingConfig struct {
	Interval time.Duration
	Tables   map[normalize.Relation]string
}

func (c PollingConfig) withDefaults() PollingConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Tables == nil {
		c.Tables = make(map[normalize.Relation]string)
	}
	for _, rel := range normalize.Relations {
		if _, ok := c.Tables[rel]; !ok {
			c.Tables[rel] = string(rel)
		}
	}
	return c
}

// PollingFeed re-reads whole tables on an interval and delivers a relation
// only when its contents changed.
type PollingFeed struct {
	db  *gorm.DB
	log *zap.Logger
	cfg PollingConfig
}

func NewPollingFeed(db *gorm.DB, log *zap.Logger, cfg PollingConfig) *PollingFeed {
	return &PollingFeed{
		db:  db,
		log: log.Named("realtime.feed.polling"),
		cfg: cfg.withDefaults(),
	}
}

func (f *PollingFeed) Fetch(ctx context.Context, relation normalize.Relation) ([]normalize.Row, error) {
	var records []map[string]any
	if err := f.db.WithContext(ctx).Table(f.cfg.Tables[relation]).Find(&records).Error; err != nil {
		return nil, err
	}
	rows := make([]normalize.Row, len(records))
	for i, r := range records {
		rows[i] = normalize.Row(r)
	}
	return rows, nil
}

// Watch starts polling relation in the background until ctx is done.
func (f *PollingFeed) Watch(ctx context.Context, relation normalize.Relation, cb Callback) error {
	go f.poll(ctx, relation, cb)
	return nil
}

func (f *PollingFeed) poll(ctx context.Context, relation normalize.Relation, cb Callback) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	var last uint64
	failing := false
	for {
		rows, err := f.Fetch(ctx, relation)
		switch {
		case err != nil && ctx.Err() == nil:
			if !failing {
				f.log.Warn("relation poll failed", zap.String("relation", string(relation)), zap.Error(err))
			}
			failing = true
		case err == nil:
			failing = false
			if sum := fingerprint(rows); sum != last {
				last = sum
				cb(rows)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fingerprint(rows []normalize.Row) uint64 {
	h := fnv.New64a()
	raw, err := json.Marshal(rows)
	if err != nil {
		return 0
	}
	_, _ = h.Write(raw)
	return h.Sum64()
}
