//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/sweth/internal/models"
)

// TestMemcachedCache_GetSet_Integration verifies that MemcachedCache successfully
// stores and retrieves values when memcached server is available.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	client := NewMemcacheClient("localhost:11211", 500*time.Millisecond, 2)
	defer client.Close()
	c := NewMemcachedCache[[]models.ForecastSample](client, "forecast")

	ctx := context.Background()
	val := []models.ForecastSample{{Timestamp: "2024-06-01 06:00:00", Date: "2024-06-01", TimeOfDay: "06:00:00", Temperature: 12.5}}
	if err := c.Set(ctx, "berlin", val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, "berlin")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if len(got) != 1 || got[0] != val[0] {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies that MemcachedCache returns
// ok=false when requested key does not exist in memcached.
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	client := NewMemcacheClient("localhost:11211", 500*time.Millisecond, 2)
	defer client.Close()
	c := NewMemcachedCache[models.CurrentConditions](client, "current")

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
