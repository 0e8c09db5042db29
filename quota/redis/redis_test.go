//go:build integration

package redis_test

import (
	"context"
	"os"
	"strings"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	ap "github.com/kai200407/aipostblog"
	"github.com/kai200407/aipostblog/quota/quotatest"
	quotaredis "github.com/kai200407/aipostblog/quota/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStoreConformance(t *testing.T) {
	client := newTestClient(t)

	quotatest.Run(t, func(t *testing.T) ap.QuotaStore {
		// Use a unique prefix per test to avoid collisions.
		prefix := "test:" + strings.ReplaceAll(t.Name(), "/", ":") + ":"
		s := quotaredis.New(client, quotaredis.WithKeyPrefix(prefix))
		t.Cleanup(func() {
			ctx := context.Background()
			iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		})
		return s
	})
}
