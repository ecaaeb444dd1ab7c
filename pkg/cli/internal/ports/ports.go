// Package ports provides port availability checking.
package ports

import (
	"net"
	"strconv"
)

// Check reports an error when host:port cannot be bound. Port 0 always
// passes.
func Check(host string, port int) error {
	if port == 0 {
		return nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	_ = ln.Close()
	return nil
}

// Duplicate returns the first non-zero port that appears twice, with the
// indexes of both uses.
func Duplicate(ports []int) (port, first, second int, found bool) {
	seen := make(map[int]int, len(ports))
	for i, p := range ports {
		if p == 0 {
			continue
		}
		if j, ok := seen[p]; ok {
			return p, j, i, true
		}
		seen[p] = i
	}
	return 0, 0, 0, false
}
