package store_test

import (
	"context"
	"errors"
	"sync"

	"critical-alerts/internal/store"
)

// fakeKV 仅用于单元测试（内存 KV，可注入写失败）
type fakeKV struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	failSet error
	failGet error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return "", f.failGet
	}
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrSlotMiss
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return f.failSet
	}
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeKV) raw(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

var errBackendDown = errors.New("backend down")
