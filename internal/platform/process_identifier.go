package platform

import (
	"fmt"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// portKey identifies a network port + protocol pair.
type portKey struct {
	port  uint16
	isUDP bool
}

const pidCacheTTL = 300 * time.Millisecond

// PortTable implements ProcessIdentifier from the system socket table.
// A full scan builds a port→PID map that is cached for 300ms.
type PortTable struct {
	mu       sync.RWMutex
	cache    map[portKey]uint32
	cacheAge time.Time

	connections func(kind string) ([]psnet.ConnectionStat, error)
}

var _ ProcessIdentifier = (*PortTable)(nil)

// NewPortTable creates a process identifier backed by gopsutil.
func NewPortTable() *PortTable {
	return &PortTable{
		cache:       make(map[portKey]uint32),
		connections: psnet.Connections,
	}
}

// FindPIDByPort finds the PID owning a socket bound to the given local port.
func (pt *PortTable) FindPIDByPort(srcPort uint16, isUDP bool) (uint32, error) {
	key := portKey{srcPort, isUDP}

	pt.mu.RLock()
	if pid, ok := pt.cache[key]; ok && time.Since(pt.cacheAge) < pidCacheTTL {
		pt.mu.RUnlock()
		return pid, nil
	}
	pt.mu.RUnlock()

	fresh, err := pt.scan()
	if err != nil {
		return 0, err
	}

	pt.mu.Lock()
	pt.cache = fresh
	pt.cacheAge = time.Now()
	pt.mu.Unlock()

	if pid, ok := fresh[key]; ok {
		return pid, nil
	}
	return 0, fmt.Errorf("[Platform] no PID for port %d (UDP=%v)", srcPort, isUDP)
}

func (pt *PortTable) scan() (map[portKey]uint32, error) {
	result := make(map[portKey]uint32, 256)
	for _, kind := range []string{"tcp", "udp"} {
		conns, err := pt.connections(kind)
		if err != nil {
			return nil, fmt.Errorf("[Platform] list %s sockets: %w", kind, err)
		}
		isUDP := kind == "udp"
		for _, c := range conns {
			if c.Pid <= 0 || c.Laddr.Port == 0 || c.Laddr.Port > 0xffff {
				continue
			}
			result[portKey{uint16(c.Laddr.Port), isUDP}] = uint32(c.Pid)
		}
	}
	return result, nil
}
