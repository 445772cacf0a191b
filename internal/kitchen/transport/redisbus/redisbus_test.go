package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDialFailsWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	tr := New(client, config.KitchenConfig{}, zap.NewNop())
	assert.Equal(t, "redis", tr.Name())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tr.Dial(ctx)
	assert.Error(t, err)
}
