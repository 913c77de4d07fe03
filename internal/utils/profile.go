package utils

import (
	"os"
	"runtime/pprof"

	"github.com/pkg/errors"
)

func WriteHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create memory profile")
	}
	if err := pprof.WriteHeapProfile(f); err != nil {
		f.Close()
		return errors.Wrap(err, "write memory profile")
	}
	return f.Close()
}
