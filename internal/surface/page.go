package surface

import "sync"

// Page is an in-process Host. It models the page the overlay is composited
// into: the reference image box, the scroll offset and the last placement of
// the surface. Layout updates arrive from the transport.
type Page struct {
	mu        sync.RWMutex
	enabled   bool
	box       Box
	scrollX   float64
	scrollY   float64
	placement Placement
	attached  bool
}

// NewPage creates a page whose reference image has the given box.
func NewPage(box Box, enabled bool) *Page {
	return &Page{box: box, enabled: enabled}
}

// SetLayout replaces the reference box and scroll offset.
func (p *Page) SetLayout(box Box, scrollX, scrollY float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.box = box
	p.scrollX = scrollX
	p.scrollY = scrollY
}

// SetEnabled toggles whether the reference image exists.
func (p *Page) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// FindReference implements Host.
func (p *Page) FindReference() (Element, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.enabled {
		return nil, false
	}
	return pageImage{p}, true
}

// ScrollOffset implements Host.
func (p *Page) ScrollOffset() (float64, float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scrollX, p.scrollY
}

// Attach implements Host.
func (p *Page) Attach(pl Placement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placement = pl
	p.attached = true
}

// Placement returns the last placement and whether the surface is attached.
func (p *Page) Placement() (Placement, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.placement, p.attached
}

// pageImage reads the page's current box on every call, so the box is live.
type pageImage struct {
	p *Page
}

func (e pageImage) BoundingBox() Box {
	e.p.mu.RLock()
	defer e.p.mu.RUnlock()
	return e.p.box
}
