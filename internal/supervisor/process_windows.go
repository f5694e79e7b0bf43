//go:build windows

package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// sysProcAttr gives each worker its own process group so console Ctrl+C
// reaches only the coordinator.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// notifySignals relays os.Interrupt to ch; Windows has no SIGTERM delivery.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
