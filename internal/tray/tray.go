// Package tray provides a system tray control surface for mudra.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/session"
)

// Tray mirrors the dashboard's start and stop controls in the system tray
// and shows the last top gesture.
type Tray struct {
	onStart func()
	onStop  func()
	onOpen  func()
	onQuit  func()
	running bool
	last    string
	mu      sync.RWMutex

	// Menu items stored for later updates
	menuStart       *systray.MenuItem
	menuStop        *systray.MenuItem
	menuLastGesture *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnStart sets the callback invoked when Start is clicked.
func (t *Tray) OnStart(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStart = fn
}

// OnStop sets the callback invoked when Stop is clicked.
func (t *Tray) OnStop(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStop = fn
}

// OnOpen sets the callback invoked when Open Dashboard is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback invoked when Quit is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit and must be called from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Sign Gesture Detection")

	t.mu.Lock()
	t.menuStart = systray.AddMenuItem("▶ Start Webcam", "Start a detection session")
	t.menuStop = systray.AddMenuItem("■ Stop Webcam", "Stop the running session")
	systray.AddSeparator()
	t.menuLastGesture = systray.AddMenuItem(lastGestureTitle(t.last), "Last top gesture")
	t.menuLastGesture.Disable()
	t.applyRunningLocked()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuStart.ClickedCh:
				t.handle(func() func() { return t.onStart })
			case <-t.menuStop.ClickedCh:
				t.handle(func() func() { return t.onStop })
			case <-menuOpen.ClickedCh:
				t.handle(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.handle(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handle looks up a callback under the lock and calls it outside the lock.
func (t *Tray) handle(pick func() func()) {
	t.mu.RLock()
	callback := pick()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// Update reflects a session status in the menu.
func (t *Tray) Update(st session.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = st.State == session.Running
	if st.HasTop {
		t.last = fmt.Sprintf("%s (%.2f)", st.TopLabel, st.TopScore)
	}

	t.applyRunningLocked()
	if t.menuLastGesture != nil {
		t.menuLastGesture.SetTitle(lastGestureTitle(t.last))
	}
}

// Watch applies every status from updates until the channel closes.
func (t *Tray) Watch(updates <-chan session.Status) {
	for st := range updates {
		t.Update(st)
	}
}

// LastGesture returns the last top gesture shown, or "" if none.
func (t *Tray) LastGesture() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Running reports whether the last status was from a running session.
func (t *Tray) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *Tray) applyRunningLocked() {
	if t.menuStart == nil || t.menuStop == nil {
		return
	}
	if t.running {
		t.menuStart.Disable()
		t.menuStop.Enable()
	} else {
		t.menuStart.Enable()
		t.menuStop.Disable()
	}
}

func lastGestureTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}
