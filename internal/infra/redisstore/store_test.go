package redisstore

import (
	"context"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := New("redis://"+mr.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url", "")
	assert.Error(t, err)
}

func TestNew_ConnectionFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New("redis://"+addr, "")
	assert.Error(t, err)
}

func TestStore_Initialize(t *testing.T) {
	store, mr := setupStore(t)

	assert.False(t, store.IsInitialized())
	require.NoError(t, store.Initialize())
	assert.True(t, store.IsInitialized())

	v, err := mr.Get("test:request_code")
	require.NoError(t, err)
	assert.Equal(t, "0", v)

	// Initialize keeps an existing counter
	require.NoError(t, mr.Set("test:request_code", "5"))
	require.NoError(t, store.Initialize())
	v, _ = mr.Get("test:request_code")
	assert.Equal(t, "5", v)
}

func TestStore_NextRequestCode(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	code1, err := store.NextRequestCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, code1)

	code2, err := store.NextRequestCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, code2)
}

func TestStore_NextRequestCode_Wraps(t *testing.T) {
	tests := []struct {
		name string
		last int
		want int
	}{
		{"normal", 41, 42},
		{"before overflow", math.MaxInt32 - 2, math.MaxInt32 - 1},
		{"at overflow", math.MaxInt32 - 1, domain.DefaultRequestCode},
		{"corrupt negative", -7, domain.DefaultRequestCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr := setupStore(t)
			require.NoError(t, mr.Set("test:request_code", strconv.Itoa(tt.last)))

			code, err := store.NextRequestCode(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestStore_NextRequestCode_Concurrent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	const n = 10
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := store.NextRequestCode(ctx)
			assert.NoError(t, err)
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[int]bool)
	for c := range codes {
		assert.False(t, seen[c], "duplicate request code %d", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
}

func TestStore_RegisterTakeList(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, code := range []int{3, 1, 2} {
		require.NoError(t, store.Register(ctx, domain.PendingCallback{
			RequestCode:   code,
			CreatedAt:     now,
			Executable:    "/scripts/run.sh",
			RunInTerminal: code == 3,
			Caller:        domain.CallerContext{ID: "caller", Ordered: true},
		}))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].RequestCode, list[1].RequestCode, list[2].RequestCode})
	assert.True(t, list[2].RunInTerminal)

	cb, err := store.Take(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cb.RequestCode)
	assert.Equal(t, "caller", cb.Caller.ID)
	assert.True(t, cb.CreatedAt.Equal(now))

	_, err = store.Take(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrCallbackNotFound)

	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_List_SkipsCorruptEntries(t *testing.T) {
	store, mr := setupStore(t)
	mr.HSet("test:callbacks", "7", "{not json")

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("test:callbacks"))
}

func TestStore_List_Empty(t *testing.T) {
	store, _ := setupStore(t)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
