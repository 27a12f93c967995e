//go:build cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

type hostKeyboard struct {
	ch chan KeyEvent
}

func newHostKeyboard() *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64)}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

func (k *hostKeyboard) poll() {
	emit := func(r rune) {
		select {
		case k.ch <- KeyEvent{Press: true, Rune: r}:
		default:
		}
	}

	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	if ctrl {
		emitCtrl := func(key ebiten.Key, r rune) {
			if inpututil.IsKeyJustPressed(key) {
				emit(r)
			}
		}
		emitCtrl(ebiten.KeyC, 0x03)
		emitCtrl(ebiten.KeyD, 0x04)
		emitCtrl(ebiten.KeyU, 0x15)
	}

	for _, r := range ebiten.AppendInputChars(nil) {
		emit(r)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		emit('\n')
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		emit('\b')
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		emit('\t')
	}
}
