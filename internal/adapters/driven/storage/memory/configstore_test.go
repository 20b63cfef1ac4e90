package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore(t *testing.T) {
	store := NewConfigStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.values)
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("store.driver", "sqlite"))
	require.NoError(t, store.Set("store.driver", "postgres"))

	val, ok := store.Get("store.driver")
	assert.True(t, ok)
	assert.Equal(t, "postgres", val)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	_ = store.Set("sync.page_size", 50)
	_ = store.Set("scheduler.max_concurrency", int64(8))
	_ = store.Set("amqp.prefetch", float64(10))
	_ = store.Set("retry.multiplier", 1.5)
	_ = store.Set("scheduler.enabled", true)
	_ = store.Set("http.addr", ":9090")
	_ = store.Set("tags", []any{"a", 1, "b"})

	assert.Equal(t, 50, store.GetInt("sync.page_size"))
	assert.Equal(t, 8, store.GetInt("scheduler.max_concurrency"))
	assert.Equal(t, 10, store.GetInt("amqp.prefetch"))
	assert.Equal(t, 0, store.GetInt("http.addr"))
	assert.Equal(t, 0, store.GetInt("missing"))

	assert.InDelta(t, 1.5, store.GetFloat("retry.multiplier"), 1e-9)
	assert.InDelta(t, 50.0, store.GetFloat("sync.page_size"), 1e-9)
	assert.Zero(t, store.GetFloat("http.addr"))

	assert.True(t, store.GetBool("scheduler.enabled"))
	assert.False(t, store.GetBool("http.addr"))

	assert.Equal(t, ":9090", store.GetString("http.addr"))
	assert.Empty(t, store.GetString("sync.page_size"))

	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("tags"))
	assert.Nil(t, store.GetStringSlice("http.addr"))
}

func TestConfigStore_GetDuration(t *testing.T) {
	store := NewConfigStore()
	_ = store.Set("scheduler.tick_interval", "5s")
	_ = store.Set("retention.interval", 2*time.Hour)
	_ = store.Set("retry.base_delay", "soon")
	_ = store.Set("sync.page_size", 50)

	d, ok := store.GetDuration("scheduler.tick_interval")
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	d, ok = store.GetDuration("retention.interval")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, d)

	_, ok = store.GetDuration("retry.base_delay")
	assert.False(t, ok)
	_, ok = store.GetDuration("sync.page_size")
	assert.False(t, ok)
	_, ok = store.GetDuration("missing")
	assert.False(t, ok)
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			_ = store.Set(fmt.Sprintf("key-%d", id), id)
		}(i)
		go func(id int) {
			defer wg.Done()
			_ = store.GetInt(fmt.Sprintf("key-%d", id))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		assert.Equal(t, i, store.GetInt(fmt.Sprintf("key-%d", i)))
	}
}
