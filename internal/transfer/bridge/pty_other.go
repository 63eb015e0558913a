//go:build !linux

package bridge

import (
	"errors"
	"os"
	"syscall"
)

func openPTY() (*os.File, *os.File, error) {
	return nil, nil, errors.ErrUnsupported
}

func procAttr() *syscall.SysProcAttr {
	return nil
}
