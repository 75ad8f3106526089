// Package lazyimage defers image fetches until an element is about to scroll
// into view.
package lazyimage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/portfolio/internal/datauri"
)

const (
	DefaultRootMargin = 50
	DefaultThreshold  = 0.01
	// OptimizedQuality is the q parameter added to rewritten references
	OptimizedQuality = 80
)

// DefaultPlaceholder is a neutral gray rectangle
var DefaultPlaceholder = "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(
	`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300"><rect width="100%" height="100%" fill="#e5e7eb"/></svg>`,
))

// DefaultLocalHosts are API hosts that already serve images at their final size
var DefaultLocalHosts = []string{"localhost", "127.0.0.1"}

type State int

const (
	Pending State = iota
	InView
	Loading
	Loaded
	Errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InView:
		return "in_view"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == Loaded || s == Errored
}

// ObserveConfig describes what a VisibilityWatcher should watch
type ObserveConfig struct {
	Bounds     Rect
	RootMargin float64
	Threshold  float64
}

// VisibilityWatcher calls onVisible once the observed element comes within
// the margin of the viewport. The returned function stops the watch.
type VisibilityWatcher interface {
	Observe(cfg ObserveConfig, onVisible func()) (stop func())
}

// Fetcher retrieves an image reference
type Fetcher interface {
	Fetch(ctx context.Context, src string) error
}

// ErrorEvent is passed to Options.OnError when a deferred fetch fails
type ErrorEvent struct {
	Target *Loader
	Src    string
	Err    error
}

type Options struct {
	Src         string
	Alt         string
	Width       int
	Height      int
	Placeholder string
	OnError     func(ErrorEvent)
	OnLoad      func()
	// Priority skips visibility gating and fetches as soon as Start is called
	Priority bool
	// RootMargin grows the viewport on every side. Nil means DefaultRootMargin.
	RootMargin *float64
	Threshold  float64
	LocalHosts []string
	Bounds     Rect
}

// Margin returns a pointer for Options.RootMargin
func Margin(px float64) *float64 {
	return &px
}

// Loader is one deferred image instance
type Loader struct {
	opts    Options
	margin  float64
	watcher VisibilityWatcher
	fetcher Fetcher

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	displaySrc string
	effective  string
	err        error
	started    bool
	detached   bool
	stopWatch  func()
	done       chan struct{}
}

// New prepares a loader. Priority loaders begin fetching right away;
// others do nothing until Start.
func New(ctx context.Context, opts Options, watcher VisibilityWatcher, fetcher Fetcher) *Loader {
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.LocalHosts == nil {
		opts.LocalHosts = DefaultLocalHosts
	}

	margin := float64(DefaultRootMargin)
	if opts.RootMargin != nil {
		margin = *opts.RootMargin
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Loader{
		opts:       opts,
		margin:     margin,
		watcher:    watcher,
		fetcher:    fetcher,
		ctx:        ctx,
		cancel:     cancel,
		state:      Pending,
		displaySrc: opts.Placeholder,
		done:       make(chan struct{}),
	}
	if opts.Priority {
		l.Start()
	}
	return l
}

// Start begins observing, or fetches immediately for priority images.
// Calling Start more than once has no effect.
func (l *Loader) Start() {
	l.mu.Lock()
	if l.started || l.detached {
		l.mu.Unlock()
		return
	}
	l.started = true

	if l.opts.Priority {
		l.state = Loading
		l.effective = l.opts.Src
		l.mu.Unlock()
		go l.fetch(l.opts.Src)
		return
	}
	l.mu.Unlock()

	stop := l.watcher.Observe(ObserveConfig{
		Bounds:     l.opts.Bounds,
		RootMargin: l.margin,
		Threshold:  l.opts.Threshold,
	}, l.onVisible)

	l.mu.Lock()
	if l.state == Pending && !l.detached {
		l.stopWatch = stop
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	// already fired or detached while registering
	stop()
}

func (l *Loader) onVisible() {
	l.mu.Lock()
	if l.state != Pending || l.detached {
		l.mu.Unlock()
		return
	}
	l.state = InView
	stop := l.stopWatch
	l.stopWatch = nil

	l.effective = EffectiveSource(l.opts.Src, l.opts.Width, l.opts.LocalHosts)
	l.state = Loading
	src := l.effective
	l.mu.Unlock()

	if stop != nil {
		stop()
	}
	slog.Debug("Image in view, fetching", "src", truncate(src))
	go l.fetch(src)
}

func (l *Loader) fetch(src string) {
	err := l.fetcher.Fetch(l.ctx, src)

	l.mu.Lock()
	if l.detached {
		l.mu.Unlock()
		return
	}
	var callback func()
	if err != nil {
		l.state = Errored
		l.err = err
		if !l.opts.Priority && l.opts.OnError != nil {
			onError := l.opts.OnError
			event := ErrorEvent{Target: l, Src: src, Err: err}
			callback = func() { onError(event) }
		}
	} else {
		l.state = Loaded
		l.displaySrc = src
		callback = l.opts.OnLoad
	}
	close(l.done)
	l.mu.Unlock()

	if err != nil {
		slog.Debug("Image fetch failed", "src", truncate(src), "err", err)
	}
	if callback != nil {
		callback()
	}
}

// Detach marks the element as removed. An in-flight fetch is cancelled and
// its completion is ignored.
func (l *Loader) Detach() {
	l.mu.Lock()
	if l.detached {
		l.mu.Unlock()
		return
	}
	l.detached = true
	stop := l.stopWatch
	l.stopWatch = nil
	l.mu.Unlock()

	if stop != nil {
		stop()
	}
	l.cancel()
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// DisplaySrc is the reference currently shown: the placeholder until loaded
func (l *Loader) DisplaySrc() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.displaySrc
}

// EffectiveSrc is the reference that was or will be fetched. Empty before InView.
func (l *Loader) EffectiveSrc() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.effective
}

// IsLoaded drives the placeholder cross-fade
func (l *Loader) IsLoaded() bool {
	return l.State() == Loaded
}

// Err returns the fetch error once the loader has errored
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Fallback is the inline text shown when a priority image fails. Empty otherwise.
func (l *Loader) Fallback() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.opts.Priority || l.state != Errored {
		return ""
	}
	if l.opts.Alt == "" {
		return "Image unavailable"
	}
	return "Image unavailable: " + l.opts.Alt
}

func (l *Loader) Alt() string {
	return l.opts.Alt
}

// Done is closed when the loader reaches Loaded or Errored
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// EffectiveSource adds width and quality hints to remote references.
// Embedded data, local API references, and calls without a width are left alone.
func EffectiveSource(src string, width int, localHosts []string) string {
	if width <= 0 || datauri.IsDataURI(src) {
		return src
	}

	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	// host-less references are same-origin and come from the local API
	if u.Host == "" || isLocalHost(u.Host, localHosts) {
		return src
	}

	q := u.Query()
	q.Set("w", strconv.Itoa(width))
	q.Set("q", strconv.Itoa(OptimizedQuality))
	u.RawQuery = q.Encode()
	return u.String()
}

func isLocalHost(host string, localHosts []string) bool {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	for _, local := range localHosts {
		if strings.EqualFold(local, host) || strings.EqualFold(local, hostname) {
			return true
		}
	}
	return false
}

func truncate(src string) string {
	if len(src) <= 64 {
		return src
	}
	return fmt.Sprintf("%s...(%d bytes)", src[:64], len(src))
}
