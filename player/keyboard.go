package main

import (
	"os"

	"golang.org/x/term"
)

type action int

const (
	actionNone action = iota
	actionTogglePause
	actionVsyncInfo
	actionQuit
)

// keyboard reads playback controls from raw-mode stdin on its own goroutine.
// Close restores the terminal.
type keyboard struct {
	actions chan action
	restore func()
}

func startKeyboard() (*keyboard, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	kb := &keyboard{
		actions: make(chan action, 8),
		restore: func() { term.Restore(fd, old) },
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			var a action
			switch buf[0] {
			case ' ':
				a = actionTogglePause
			case 'v', 'V':
				a = actionVsyncInfo
			case 'q', 'Q', 0x1b, 0x03: // q, ESC, Ctrl-C in raw mode
				a = actionQuit
			default:
				continue
			}
			select {
			case kb.actions <- a:
			default:
			}
		}
	}()
	return kb, nil
}

func (kb *keyboard) Close() {
	kb.restore()
}
