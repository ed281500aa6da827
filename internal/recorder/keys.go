package recorder

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// KeyMap maps raw terminal bytes onto control events. The defaults are
// space to toggle and q / Esc / Ctrl-C to stop.
type KeyMap struct {
	Toggle byte
	Stop   []byte
}

// DefaultKeyMap returns the standard key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Toggle: ' ',
		Stop:   []byte{'q', 'Q', 0x1b /* Esc */, 0x03 /* Ctrl-C */},
	}
}

// Translate maps one input byte to a control event. The second return is
// false for bytes that are not bound to anything.
func (m KeyMap) Translate(b byte) (Event, bool) {
	if b == m.Toggle {
		return EventToggle, true
	}
	for _, s := range m.Stop {
		if b == s {
			return EventStop, true
		}
	}
	return 0, false
}

// KeyListener reads single keypresses from a raw-mode terminal and
// translates them to control events, independent of the audio stream. It
// runs for the session's lifetime and must be Restored on teardown.
type KeyListener struct {
	in       *os.File
	keymap   KeyMap
	oldState *term.State
	events   chan Event
	logger   *slog.Logger
}

// NewKeyListener switches the terminal to raw mode. Fails when stdin is not
// a terminal (pipes cannot drive interactive mode).
func NewKeyListener(in *os.File, keymap KeyMap, logger *slog.Logger) (*KeyListener, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, os.ErrInvalid
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	return &KeyListener{
		in:       in,
		keymap:   keymap,
		oldState: oldState,
		events:   make(chan Event, 4),
		logger:   logger,
	}, nil
}

// Events returns the channel control events are delivered on. The channel
// is closed after a stop key is seen.
func (k *KeyListener) Events() <-chan Event {
	return k.events
}

// Start launches the listener goroutine. It exits on a stop key or a read
// error; a goroutine still blocked in Read at process end is harmless, the
// terminal state is what matters and Restore handles that.
func (k *KeyListener) Start() {
	go k.readLoop()
}

// readLoop reads one byte at a time, emits the bound events and exits after
// a stop. Unbound bytes are ignored.
func (k *KeyListener) readLoop() {
	defer close(k.events)
	buf := make([]byte, 1)
	for {
		n, err := k.in.Read(buf)
		if err != nil {
			k.logger.Debug("Key listener read ended", slog.String("error", err.Error()))
			return
		}
		if n == 0 {
			continue
		}

		ev, ok := k.keymap.Translate(buf[0])
		if !ok {
			continue
		}
		k.events <- ev
		if ev == EventStop {
			return
		}
	}
}

// Restore puts the terminal back into its previous mode. Must run on every
// exit path once the listener was created.
func (k *KeyListener) Restore() {
	if err := term.Restore(int(k.in.Fd()), k.oldState); err != nil {
		k.logger.Warn("Failed to restore terminal state", slog.String("error", err.Error()))
	}
}
