package keyValStore

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/disk"
)

var (
	ErrNoPath         = errors.New("keyValStore: no path provided in configuration")
	ErrNotEnoughSpace = errors.New("keyValStore: not enough space available on disk")
)

func (sc *StoreConfig) checkConfig() error {
	if len(sc.Paths) == 0 {
		return ErrNoPath
	}

	path := sc.Paths[0] // only the first path is used for now
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("keyValStore: path %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("keyValStore: checking path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("keyValStore: path %s is not a directory", path)
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("keyValStore: reading disk usage of %s: %w", path, err)
	}
	if availableGB := usage.Free / (1024 * 1024 * 1024); availableGB < uint64(sc.MinimumFreeSpace) {
		return fmt.Errorf("%w: %d GB free, %d GB required", ErrNotEnoughSpace, availableGB, sc.MinimumFreeSpace)
	}

	return nil
}
