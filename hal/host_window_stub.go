//go:build !cgo

package hal

import "github.com/pkg/errors"

func RunWindow(_ Config, _ func(HAL) (App, error)) (int, error) {
	return 1, errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}
