package guard

// Presenter displays the transient warning message. The engine is its only
// caller and polls Visible once a minute to learn about dismissal.
type Presenter interface {
	Show(text string)
	Update(text string)
	Hide()
	Visible() bool
}

// Pinger tells the server that the user is still active. Ping must not block
// on a server response and must not call back into the Engine synchronously.
type Pinger interface {
	Ping(immediate bool)
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(immediate bool)

func (f PingerFunc) Ping(immediate bool) { f(immediate) }

// NopPresenter never shows anything. A warning shown through it counts as
// dismissed on the first tick.
type NopPresenter struct{}

func (NopPresenter) Show(string)   {}
func (NopPresenter) Update(string) {}
func (NopPresenter) Hide()         {}
func (NopPresenter) Visible() bool { return false }
