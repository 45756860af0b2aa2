//go:build !darwin

package enginebootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// unsupportedVM satisfies VM on every platform the bootstrap fallback
// doesn't cover. Ensure only reaches here when the preferred socket is
// unreachable and GOOS != darwin, so Start always errors.
type unsupportedVM struct{}

func newVM(string, zerolog.Logger) VM {
	return unsupportedVM{}
}

func (unsupportedVM) Start(context.Context) error {
	return fmt.Errorf("container engine socket unreachable and the bootstrap fallback is only implemented for darwin")
}

func (unsupportedVM) SocketPath() string { return "" }

func (unsupportedVM) Stop(context.Context) error { return nil }
