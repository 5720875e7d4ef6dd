// SPDX-License-Identifier: AGPL-3.0-only
package sleep

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
)

const (
	esContinuous     = 0x80000000
	esSystemRequired = 0x00000001
)

var procSetThreadExecutionState *syscall.LazyProc

func init() {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	procSetThreadExecutionState = kernel32.NewProc("SetThreadExecutionState")
}

// Prevent keeps the system from idle sleeping until release is called. The
// reason is not shown anywhere on Windows.
func Prevent(reason string) (release func(), err error) {
	done := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		// SetThreadExecutionState is per-thread state.
		runtime.LockOSThread()

		ret, _, err := procSetThreadExecutionState.Call(uintptr(esContinuous | esSystemRequired))
		if ret == 0 {
			runtime.UnlockOSThread()
			errCh <- fmt.Errorf("SetThreadExecutionState: %w", err)
			return
		}
		errCh <- nil

		<-done

		procSetThreadExecutionState.Call(uintptr(esContinuous))
		runtime.UnlockOSThread()
	}()

	if err := <-errCh; err != nil {
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
