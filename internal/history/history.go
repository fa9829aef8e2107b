// Package history хранит в памяти последние запуски каждой оценки.
// Ключи, в которые ничего не добавлялось дольше TTL, удаляются фоновой
// очисткой.
package history

import (
	"sync"
	"time"
)

// DefaultSweepInterval задаёт период, с которым Serve ищет устаревшие ключи.
const DefaultSweepInterval = time.Minute

// Repository хранит для каждого ключа кольцевой буфер последних
// добавленных значений. Потокобезопасен.
//
// Пример использования:
//
//	runs := history.NewRepository[int64, Run](10, time.Hour)
//	go runs.Serve()
//	defer runs.Stop()
//	runs.Append(evaluationID, run)
type Repository[K comparable, T any] struct {
	length   int
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	entries map[K]*Ring[T]
	updates map[K]time.Time
	mu      sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRepository создаёт хранилище.
// Параметры:
//   - length: максимальное количество значений на один ключ (буфер переписывается по кругу).
//   - ttl: время жизни ключа без обновлений; неположительное значение отключает очистку.
func NewRepository[K comparable, T any](length int, ttl time.Duration) *Repository[K, T] {
	return &Repository[K, T]{
		length:   length,
		ttl:      ttl,
		interval: DefaultSweepInterval,
		now:      time.Now,
		entries:  make(map[K]*Ring[T]),
		updates:  make(map[K]time.Time),
		stop:     make(chan struct{}),
	}
}

// Append добавляет v как самое новое значение ключа key и продлевает его TTL.
// Если буфера для key ещё нет, он создаётся. Метод потокобезопасен.
func (r *Repository[K, T]) Append(key K, v T) {
	r.mu.RLock()
	ring, found := r.entries[key]
	r.mu.RUnlock()

	if !found {
		r.mu.Lock()
		if ring, found = r.entries[key]; !found {
			ring = NewRing[T](r.length)
			r.entries[key] = ring
		}
		r.mu.Unlock()
	}
	ring.Push(v)

	r.mu.Lock()
	r.updates[key] = r.now()
	r.mu.Unlock()
}

// Get возвращает копию значений ключа key в порядке от старых к новым.
// Если ключ отсутствует, возвращается (nil, false).
func (r *Repository[K, T]) Get(key K) ([]T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ring, found := r.entries[key]
	if !found {
		return nil, false
	}
	return ring.Slice(), true
}

// Len возвращает количество хранимых ключей.
func (r *Repository[K, T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep удаляет ключи, которые не обновлялись дольше TTL, и возвращает
// количество удалённых.
func (r *Repository[K, T]) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	var outdated []K
	r.mu.RLock()
	now := r.now()
	for key, ts := range r.updates {
		if now.Sub(ts) > r.ttl {
			outdated = append(outdated, key)
		}
	}
	r.mu.RUnlock()

	if len(outdated) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for _, key := range outdated {
		// Повторная проверка под write-блокировкой: ключ мог обновиться
		if ts, ok := r.updates[key]; ok && now.Sub(ts) > r.ttl {
			delete(r.entries, key)
			delete(r.updates, key)
			dropped++
		}
	}
	return dropped
}

// Serve периодически вызывает Sweep до вызова Stop.
// Метод блокирует выполнение и должен вызываться в отдельной горутине:
//
//	go runs.Serve()
func (r *Repository[K, T]) Serve() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stop:
			return
		}
	}
}

// Stop останавливает Serve. Метод безопасен для повторного вызова и для
// вызова до запуска Serve.
func (r *Repository[K, T]) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
