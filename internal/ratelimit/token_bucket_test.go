package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, capacity int, window time.Duration) (*RedisTokenBucket, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewRedisTokenBucket(client, capacity, window, "")
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }
	return bucket, &now
}

func TestTokenBucketRejectsWhenEmpty(t *testing.T) {
	bucket, _ := newTestBucket(t, 2, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := bucket.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}

	d, err := bucket.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request to be rejected")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected retry-after, got %s", d.RetryAfter)
	}

	other, err := bucket.Allow(ctx, "10.0.0.2")
	if err != nil || !other.Allowed {
		t.Fatalf("expected other subject to have its own bucket (err=%v)", err)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	bucket, now := newTestBucket(t, 1, time.Second)
	ctx := context.Background()

	if d, _ := bucket.Allow(ctx, "client"); !d.Allowed {
		t.Fatal("expected first request to be allowed")
	}
	if d, _ := bucket.Allow(ctx, "client"); d.Allowed {
		t.Fatal("expected second request to be rejected")
	}

	*now = now.Add(time.Second)
	if d, _ := bucket.Allow(ctx, "client"); !d.Allowed {
		t.Fatal("expected request after refill to be allowed")
	}
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	if _, err := NewRedisTokenBucket(nil, 1, time.Second, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisTokenBucket(client, 0, time.Second, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, 1, 0, ""); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestTokenBucketAllowNChargesCost(t *testing.T) {
	bucket, _ := newTestBucket(t, 4, time.Minute)
	ctx := context.Background()

	d, err := bucket.AllowN(ctx, "user-1", 3)
	if err != nil {
		t.Fatalf("allow n: %v", err)
	}
	if !d.Allowed || d.Remaining != 1 {
		t.Fatalf("unexpected decision %+v", d)
	}

	d, err = bucket.AllowN(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("allow n: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected cost above balance to be rejected")
	}

	if _, err := bucket.AllowN(ctx, "user-1", 5); err == nil {
		t.Fatal("expected error for cost above capacity")
	}
	if _, err := bucket.AllowN(ctx, "user-1", 0); err == nil {
		t.Fatal("expected error for zero cost")
	}
}

func TestParseDecisionRejectsMalformed(t *testing.T) {
	if _, err := parseDecision("nope"); err == nil {
		t.Fatal("expected error for non-slice response")
	}
	if _, err := parseDecision([]any{int64(1), 2.5, int64(0)}); err == nil {
		t.Fatal("expected error for float field")
	}
	d, err := parseDecision([]any{int64(0), "3", int64(250)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Allowed || d.Remaining != 3 || d.RetryAfter != 250*time.Millisecond {
		t.Fatalf("unexpected decision %+v", d)
	}
}
