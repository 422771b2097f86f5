package command

import (
	"context"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-USER LOCKING
// ══════════════════════════════════════════════════════════════════════════════

// Locker упорядочивает работу по ключу. Lock ждёт освобождения ключа или
// завершения ctx. Возвращённая функция снимает блокировку, повторный вызов безопасен.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserLockKey - ключ блокировки состояния пользователя.
func UserLockKey(userID string) string {
	return "user:" + userID
}

// KeyedMutex - Locker внутри процесса, по слоту на ключ.
// Слоты считают ссылки и удаляются, когда их никто не держит и не ждёт,
// поэтому карта не растёт с числом пользователей.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex создаёт пустой KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock захватывает слот ключа.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, s *slot) {
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// size - число отслеживаемых ключей (для тестов).
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

// ChainLocker захватывает блокировки по порядку и снимает в обратном.
// Обычно сначала локальный мьютекс, затем распределённая блокировка:
// горутины одной реплики ждут локально, а не опрашивают Redis.
type ChainLocker []Locker

// Lock захватывает все блокировки цепочки.
func (c ChainLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

// NoopLocker никогда не блокирует. Корректность держится на версионном коммите.
type NoopLocker struct{}

// Lock возвращается сразу.
func (NoopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
