// Package config loads typed configuration from a file plus DISPATCH_
// environment variables, and notifies subscribers on file changes.
//
// The capability table is the one exception to reloading: it is installed
// once at startup and never swapped afterwards.
package config

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store holds a live typed configuration value backed by a watched file.
type Store[T any] struct {
	v        *viper.Viper
	value    *T
	mu       sync.RWMutex
	watchers []func(old, new T)
}

type Option[T any] func(*Store[T])

func WithDefaults[T any](defaults map[string]any) Option[T] {
	return func(s *Store[T]) {
		for k, v := range defaults {
			s.v.SetDefault(k, v)
		}
	}
}

// WithEnv binds environment variables with the given prefix. Nested keys use
// underscores: billing.live.proxy_url becomes PREFIX_BILLING_LIVE_PROXY_URL.
func WithEnv[T any](prefix string) Option[T] {
	return func(s *Store[T]) {
		s.v.SetEnvPrefix(prefix)
		s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		s.v.AutomaticEnv()
	}
}

// Load reads the file at path and starts watching it for changes.
func Load[T any](path string, opts ...Option[T]) (*Store[T], error) {
	v := viper.New()
	v.SetConfigFile(path)

	s := &Store[T]{v: v}
	for _, opt := range opts {
		opt(s)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var val T
	if err := v.Unmarshal(&val); err != nil {
		return nil, err
	}
	s.value = &val

	s.watch()
	return s, nil
}

// Get returns a deep copy of the current value. Safe for concurrent use.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(*s.value)
}

// OnChange registers a callback invoked with the old and new values after a
// successful reload that actually changed something.
func (s *Store[T]) OnChange(callback func(old, new T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, callback)
}

func Changed[T any](old, new T) bool {
	return !reflect.DeepEqual(old, new)
}

// deepCopy round-trips through JSON so callers can never alias the live value.
func deepCopy[T any](src T) T {
	var dst T
	data, _ := json.Marshal(src)
	_ = json.Unmarshal(data, &dst)
	return dst
}

func (s *Store[T]) watch() {
	var (
		debounceTimer *time.Timer
		debounceMu    sync.Mutex
	)

	// Editors fire several events per save; debounce to one reload.
	s.v.OnConfigChange(func(_ fsnotify.Event) {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
			s.handleChange()
		})
		debounceMu.Unlock()
	})

	s.v.WatchConfig()
}

func (s *Store[T]) handleChange() {
	old := s.Get()

	next, watchers, ok := s.reload()
	if !ok {
		return
	}
	if reflect.DeepEqual(old, next) {
		return
	}

	for _, cb := range watchers {
		func() {
			defer func() { _ = recover() }()
			cb(old, next)
		}()
	}
}

func (s *Store[T]) reload() (T, []func(old, new T), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if err := s.v.ReadInConfig(); err != nil {
		return zero, nil, false
	}

	var val T
	if err := s.v.Unmarshal(&val); err != nil {
		return zero, nil, false
	}
	s.value = &val

	watchers := make([]func(old, new T), len(s.watchers))
	copy(watchers, s.watchers)

	return deepCopy(val), watchers, true
}
