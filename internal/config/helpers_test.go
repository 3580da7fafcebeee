package config

import "runtime"

func isLinux() bool {
	return runtime.GOOS == platformLinux
}
