//go:build !darwin && !linux

package libav

import "fmt"

func loadMediaAV() error {
	return fmt.Errorf("%w: unsupported platform", ErrNotAvailable)
}

func mediaAVLibPaths() []string { return nil }
