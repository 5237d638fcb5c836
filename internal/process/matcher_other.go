//go:build !darwin

package process

import (
	psprocess "github.com/shirou/gopsutil/v3/process"
)

// queryProcessPath asks the OS for the executable of pid through gopsutil
// (/proc/<pid>/exe on Linux, QueryFullProcessImageName on Windows).
func queryProcessPath(pid uint32) (string, error) {
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Exe()
}
