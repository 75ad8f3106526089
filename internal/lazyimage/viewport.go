package lazyimage

import "sync"

// Rect is an axis-aligned box in page pixels
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) area() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// Expand grows r by margin on every side
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}

// Intersect returns the overlap of r and o and whether they touch at all
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	if x1 < x0 || y1 < y0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}

// IntersectionRatio is the share of target's area inside the viewport
// grown by margin. Zero-area targets count as fully visible when they touch it.
func IntersectionRatio(target, viewport Rect, margin float64) float64 {
	overlap, ok := target.Intersect(viewport.Expand(margin))
	if !ok {
		return 0
	}
	if target.area() == 0 {
		return 1
	}
	return overlap.area() / target.area()
}

// ViewportWatcher is a VisibilityWatcher driven by explicit viewport updates
type ViewportWatcher struct {
	mu       sync.Mutex
	viewport Rect
	nextID   int
	entries  map[int]*watchEntry
}

type watchEntry struct {
	cfg       ObserveConfig
	onVisible func()
}

func NewViewportWatcher(viewport Rect) *ViewportWatcher {
	return &ViewportWatcher{
		viewport: viewport,
		entries:  make(map[int]*watchEntry),
	}
}

// Observe registers cfg.Bounds and fires onVisible at most once.
// If the element already qualifies, onVisible runs before Observe returns.
func (w *ViewportWatcher) Observe(cfg ObserveConfig, onVisible func()) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	entry := &watchEntry{cfg: cfg, onVisible: onVisible}
	w.entries[id] = entry
	w.mu.Unlock()

	stop := func() {
		w.mu.Lock()
		delete(w.entries, id)
		w.mu.Unlock()
	}

	w.evaluate()
	return stop
}

// SetViewport moves the viewport and notifies every element that now qualifies
func (w *ViewportWatcher) SetViewport(viewport Rect) {
	w.mu.Lock()
	w.viewport = viewport
	w.mu.Unlock()
	w.evaluate()
}

// Viewport returns the current viewport
func (w *ViewportWatcher) Viewport() Rect {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewport
}

// Pending returns the number of elements still being watched
func (w *ViewportWatcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *ViewportWatcher) evaluate() {
	w.mu.Lock()
	var fire []func()
	for id, e := range w.entries {
		ratio := IntersectionRatio(e.cfg.Bounds, w.viewport, e.cfg.RootMargin)
		if ratio > 0 && ratio >= e.cfg.Threshold {
			fire = append(fire, e.onVisible)
			delete(w.entries, id)
		}
	}
	w.mu.Unlock()

	// callbacks run unlocked so they may call stop or Observe
	for _, f := range fire {
		f()
	}
}
