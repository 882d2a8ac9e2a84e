package site

import "syscall"

// sysProcAttr puts the child in its own process group so a terminal Ctrl-C
// reaches the parent only. Pdeathsig stops the child if the parent dies first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
