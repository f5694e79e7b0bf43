//go:build !windows

package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// sysProcAttr puts each worker in its own process group so a terminal
// interrupt reaches only the coordinator, which then stops the workers.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// notifySignals relays SIGINT and SIGTERM to ch.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
