package history

import "sync"

// Ring реализует кольцевой буфер фиксированного размера. После заполнения каждый
// Push вытесняет самый старый элемент. Элементы читаются от старых к новым.
//
//	r := NewRing[int](3)
//	r.Push(1)
//	r.Push(2)
//	r.Push(3)
//	r.Push(4) // 1 вытеснен
//	r.Slice() // [2 3 4]
type Ring[T any] struct {
	data  []T
	size  int
	count int
	head  int // самый старый элемент
	tail  int // позиция следующей записи
	mu    sync.RWMutex
}

// NewRing создаёт буфер на size элементов. Паникует, если size не
// положителен.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		panic("ring size must be positive")
	}
	return &Ring[T]{
		data: make([]T, size),
		size: size,
	}
}

// Push добавляет item; при заполненном буфере самый старый элемент
// вытесняется. Метод потокобезопасен.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[r.tail] = item
	r.tail = (r.tail + 1) % r.size
	if r.count < r.size {
		r.count++
	} else {
		r.head = (r.head + 1) % r.size
	}
}

// Len возвращает количество элементов, от 0 до Cap.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap возвращает ёмкость буфера.
func (r *Ring[T]) Cap() int {
	return r.size
}

// At возвращает i-й элемент, 0 соответствует самому старому. Паникует, если i вне
// [0, Len()).
func (r *Ring[T]) At(i int) T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= r.count {
		panic("index out of range")
	}
	return r.data[(r.head+i)%r.size]
}

// Last возвращает самый новый элемент.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[(r.tail-1+r.size)%r.size], true
}

// Slice копирует элементы от старых к новым.
func (r *Ring[T]) Slice() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.head+i)%r.size]
	}
	return out
}
