package history

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRepository(length int, ttl time.Duration) (*Repository[int64, string], *clock) {
	c := &clock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := NewRepository[int64, string](length, ttl)
	repo.now = c.Now
	return repo, c
}

func TestRepository_AppendKeepsLastValues(t *testing.T) {
	repo, _ := newTestRepository(2, time.Hour)

	repo.Append(1, "first")
	repo.Append(1, "second")
	repo.Append(1, "third")
	repo.Append(2, "other")

	values, ok := repo.Get(1)
	require.True(t, ok)
	assert.Equal(t, []string{"second", "third"}, values)
	assert.Equal(t, 2, repo.Len())

	_, ok = repo.Get(3)
	assert.False(t, ok)
}

func TestRepository_Sweep(t *testing.T) {
	repo, c := newTestRepository(3, time.Hour)

	repo.Append(1, "old")
	c.Advance(45 * time.Minute)
	repo.Append(2, "recent")
	c.Advance(30 * time.Minute)

	assert.Equal(t, 1, repo.Sweep())
	_, ok := repo.Get(1)
	assert.False(t, ok, "key 1 outlived its ttl")
	_, ok = repo.Get(2)
	assert.True(t, ok)
}

func TestRepository_AppendRefreshesTTL(t *testing.T) {
	repo, c := newTestRepository(3, time.Hour)

	repo.Append(1, "a")
	c.Advance(50 * time.Minute)
	repo.Append(1, "b")
	c.Advance(50 * time.Minute)

	assert.Zero(t, repo.Sweep())
	values, _ := repo.Get(1)
	assert.Equal(t, []string{"a", "b"}, values)
}

func TestRepository_NoTTL(t *testing.T) {
	repo, c := newTestRepository(1, 0)
	repo.Append(1, "a")
	c.Advance(24 * time.Hour)
	assert.Zero(t, repo.Sweep())
	assert.Equal(t, 1, repo.Len())
}

func TestRepository_ServeStops(t *testing.T) {
	repo, c := newTestRepository(1, time.Minute)
	repo.interval = time.Millisecond
	repo.Append(1, "a")
	c.Advance(time.Hour)

	done := make(chan struct{})
	go func() {
		repo.Serve()
		close(done)
	}()

	assert.Eventually(t, func() bool { return repo.Len() == 0 }, time.Second, time.Millisecond)

	repo.Stop()
	repo.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestRepository_StopBeforeServe(t *testing.T) {
	repo, _ := newTestRepository(1, time.Minute)
	repo.Stop()
	repo.Serve() // returns immediately
}

func TestRepository_ConcurrentAppend(t *testing.T) {
	repo, _ := newTestRepository(100, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			repo.Append(int64(v%5), "v")
			repo.Get(int64(v % 5))
			repo.Sweep()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, repo.Len())
}
