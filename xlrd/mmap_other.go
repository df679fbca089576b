//go:build !unix

package xlrd

import "os"

// mapFile reads the whole file where memory mapping is not available.
func mapFile(filename string) ([]byte, func() error, error) {
	mem, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	return mem, func() error { return nil }, nil
}
