package ui

import "sync"

// Toast is the in-terminal warning presenter. The engine drives it from its
// own goroutine and the UI reads it while rendering.
type Toast struct {
	mu      sync.Mutex
	text    string
	visible bool
	changed func()
}

// NewToast creates a hidden toast.
func NewToast() *Toast {
	return &Toast{}
}

// OnChange registers fn to run, on its own goroutine, whenever the toast
// changes.
func (t *Toast) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changed = fn
}

// Show implements guard.Presenter.
func (t *Toast) Show(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(text, true)
}

// Update implements guard.Presenter. A dismissed toast stays hidden.
func (t *Toast) Update(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.visible {
		t.setLocked(text, true)
	}
}

// Hide implements guard.Presenter.
func (t *Toast) Hide() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked("", false)
}

// Dismiss closes the toast on behalf of the user and reports whether it was
// showing. The engine notices on its next tick.
func (t *Toast) Dismiss() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.visible
	if was {
		t.setLocked("", false)
	}
	return was
}

// Visible implements guard.Presenter.
func (t *Toast) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Text returns the text shown, or "" when hidden.
func (t *Toast) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

func (t *Toast) setLocked(text string, visible bool) {
	t.text = text
	t.visible = visible
	// The engine must never wait for the UI loop.
	if t.changed != nil {
		go t.changed()
	}
}
