package lazyimage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// manualWatcher fires only when told to
type manualWatcher struct {
	mu        sync.Mutex
	observed  int
	stopped   int
	callbacks []func()
}

func (w *manualWatcher) Observe(cfg ObserveConfig, onVisible func()) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observed++
	w.callbacks = append(w.callbacks, onVisible)
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.stopped++
	}
}

func (w *manualWatcher) fire() {
	w.mu.Lock()
	cbs := append([]func(){}, w.callbacks...)
	w.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
	srcs  chan string
	gate  chan struct{}
}

func newCountingFetcher(err error) *countingFetcher {
	return &countingFetcher{err: err, srcs: make(chan string, 16)}
}

func (f *countingFetcher) Fetch(ctx context.Context, src string) error {
	f.calls.Add(1)
	f.srcs <- src
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func waitDone(t *testing.T, l *Loader) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Loader stuck in state %s", l.State())
	}
}

func TestVisibilityGating(t *testing.T) {
	watcher := &manualWatcher{}
	fetcher := newCountingFetcher(nil)

	var loads atomic.Int32
	l := New(context.Background(), Options{
		Src:    "https://cdn.example.com/a.jpg",
		Width:  320,
		OnLoad: func() { loads.Add(1) },
	}, watcher, fetcher)
	l.Start()
	l.Start()

	if watcher.observed != 1 {
		t.Fatalf("Expected a single observation, got %d", watcher.observed)
	}
	if got := fetcher.calls.Load(); got != 0 {
		t.Fatalf("Expected no fetch before visibility, got %d", got)
	}
	if l.State() != Pending || l.DisplaySrc() != DefaultPlaceholder {
		t.Fatalf("Expected pending with placeholder, got %s %q", l.State(), l.DisplaySrc())
	}

	watcher.fire()
	watcher.fire()
	waitDone(t, l)
	watcher.fire()

	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("Expected exactly one fetch, got %d", got)
	}
	if watcher.stopped != 1 {
		t.Errorf("Expected the watch to be torn down once, got %d", watcher.stopped)
	}
	want := "https://cdn.example.com/a.jpg?q=80&w=320"
	if <-fetcher.srcs != want {
		t.Errorf("Expected fetch of %s", want)
	}
	if !l.IsLoaded() || l.DisplaySrc() != want {
		t.Errorf("Expected loaded with %s, got %s %s", want, l.State(), l.DisplaySrc())
	}
	if loads.Load() != 1 {
		t.Errorf("Expected one OnLoad call, got %d", loads.Load())
	}
}

func TestFetchErrorInvokesCallback(t *testing.T) {
	watcher := &manualWatcher{}
	fetcher := newCountingFetcher(errors.New("404"))

	events := make(chan ErrorEvent, 1)
	l := New(context.Background(), Options{
		Src:         "https://cdn.example.com/missing.jpg",
		Placeholder: "data:image/gif;base64,R0lGOD",
		OnError:     func(e ErrorEvent) { events <- e },
	}, watcher, fetcher)
	l.Start()
	watcher.fire()
	waitDone(t, l)

	select {
	case e := <-events:
		if e.Target != l {
			t.Error("Expected the event to reference the loader")
		}
		if e.Err == nil || e.Src != "https://cdn.example.com/missing.jpg" {
			t.Errorf("Unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError was not called")
	}

	if l.State() != Errored {
		t.Errorf("Expected errored, got %s", l.State())
	}
	if l.DisplaySrc() != "data:image/gif;base64,R0lGOD" {
		t.Errorf("Expected placeholder to remain, got %s", l.DisplaySrc())
	}
	if l.Fallback() != "" {
		t.Error("Deferred images should not render the inline fallback")
	}
}

func TestPriorityBypassesVisibility(t *testing.T) {
	watcher := &manualWatcher{}
	fetcher := newCountingFetcher(nil)

	l := New(context.Background(), Options{Src: "https://cdn.example.com/hero.jpg", Width: 1200, Priority: true}, watcher, fetcher)
	waitDone(t, l)

	if watcher.observed != 0 {
		t.Error("Priority images should not be observed")
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("Expected one fetch, got %d", fetcher.calls.Load())
	}
	if src := <-fetcher.srcs; src != "https://cdn.example.com/hero.jpg" {
		t.Errorf("Priority fetch should use the source as given, got %s", src)
	}
	l.Start()
	if fetcher.calls.Load() != 1 {
		t.Error("Start after construction should not fetch again")
	}
}

func TestPriorityFailureRendersFallback(t *testing.T) {
	var called atomic.Bool
	l := New(context.Background(), Options{
		Src:      "https://cdn.example.com/hero.jpg",
		Alt:      "Portrait",
		Priority: true,
		OnError:  func(ErrorEvent) { called.Store(true) },
	}, &manualWatcher{}, newCountingFetcher(errors.New("offline")))
	waitDone(t, l)

	if l.Fallback() != "Image unavailable: Portrait" {
		t.Errorf("Unexpected fallback %q", l.Fallback())
	}
	if called.Load() {
		t.Error("Priority failures should not use the deferred error path")
	}
}

func TestDetachIgnoresLateCompletion(t *testing.T) {
	watcher := &manualWatcher{}
	fetcher := newCountingFetcher(nil)
	fetcher.gate = make(chan struct{})

	var loads atomic.Int32
	l := New(context.Background(), Options{Src: "https://cdn.example.com/a.jpg", OnLoad: func() { loads.Add(1) }}, watcher, fetcher)
	l.Start()
	watcher.fire()
	<-fetcher.srcs

	l.Detach()
	close(fetcher.gate)
	time.Sleep(50 * time.Millisecond)

	if l.State() != Loading {
		t.Errorf("Detached loader should not transition, got %s", l.State())
	}
	if loads.Load() != 0 {
		t.Error("OnLoad ran after detach")
	}
	if l.DisplaySrc() != DefaultPlaceholder {
		t.Error("Detached loader swapped its display reference")
	}
}

func TestDetachBeforeVisible(t *testing.T) {
	watcher := NewViewportWatcher(Rect{Width: 800, Height: 600})
	fetcher := newCountingFetcher(nil)

	l := New(context.Background(), Options{Src: "a.jpg", Bounds: Rect{Y: 2000, Width: 100, Height: 100}}, watcher, fetcher)
	l.Start()
	if watcher.Pending() != 1 {
		t.Fatalf("Expected one watched element, got %d", watcher.Pending())
	}
	l.Detach()
	if watcher.Pending() != 0 {
		t.Error("Detach should stop the watch")
	}
	watcher.SetViewport(Rect{Y: 1800, Width: 800, Height: 600})
	if fetcher.calls.Load() != 0 {
		t.Error("Detached loader fetched")
	}
}

func TestEffectiveSource(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		width    int
		expected string
	}{
		{name: "remote with width", src: "https://cdn.example.com/a.jpg", width: 400, expected: "https://cdn.example.com/a.jpg?q=80&w=400"},
		{name: "keeps existing query", src: "https://cdn.example.com/a.jpg?v=2", width: 400, expected: "https://cdn.example.com/a.jpg?q=80&v=2&w=400"},
		{name: "no width", src: "https://cdn.example.com/a.jpg", expected: "https://cdn.example.com/a.jpg"},
		{name: "data uri", src: "data:image/png;base64,AAAA", width: 400, expected: "data:image/png;base64,AAAA"},
		{name: "local api host", src: "http://localhost:8888/api/images/x/raw", width: 400, expected: "http://localhost:8888/api/images/x/raw"},
		{name: "loopback", src: "http://127.0.0.1/a.png", width: 400, expected: "http://127.0.0.1/a.png"},
		{name: "same origin path", src: "/api/images/x/raw", width: 400, expected: "/api/images/x/raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveSource(tt.src, tt.width, DefaultLocalHosts)
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Pending: "pending", InView: "in_view", Loading: "loading", Loaded: "loaded", Errored: "errored"} {
		if s.String() != want {
			t.Errorf("Expected %s, got %s", want, s.String())
		}
	}
	if !Loaded.Terminal() || !Errored.Terminal() || Loading.Terminal() {
		t.Error("Unexpected terminal states")
	}
}

func TestZeroRootMarginIsHonored(t *testing.T) {
	// 30px below a 100px viewport
	bounds := Rect{Y: 130, Width: 100, Height: 100}

	tests := []struct {
		name        string
		margin      *float64
		wantPending bool
	}{
		{name: "default margin looks ahead", margin: nil, wantPending: false},
		{name: "zero margin", margin: Margin(0), wantPending: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			watcher := NewViewportWatcher(Rect{Width: 100, Height: 100})
			fetcher := newCountingFetcher(nil)
			l := New(context.Background(), Options{
				Src:        "https://cdn.example.com/a.jpg",
				RootMargin: tt.margin,
				Bounds:     bounds,
			}, watcher, fetcher)
			l.Start()

			if got := l.State() == Pending; got != tt.wantPending {
				t.Fatalf("Expected pending=%v, got state %s", tt.wantPending, l.State())
			}
			if !tt.wantPending {
				waitDone(t, l)
				return
			}

			watcher.SetViewport(Rect{Y: 30, Width: 100, Height: 100})
			waitDone(t, l)
			if !l.IsLoaded() {
				t.Errorf("Expected the image to load once scrolled into view, got %s", l.State())
			}
		})
	}
}
