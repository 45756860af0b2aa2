package enginebootstrap

import (
	"net"
	"time"
)

// ProbeSocket reports whether a unix socket at path accepts a
// connection within timeout. Used both before bootstrapping (is one
// already running?) and while waiting for a freshly started VM's
// containerd to come up.
func ProbeSocket(path string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
