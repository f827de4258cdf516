package consistent

// Consistent hashing ring over shard owners.
//
// https://en.wikipedia.org/wiki/Consistent_hashing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	blake2b "github.com/minio/blake2b-simd"
)

const replicationFactor = 10

var ErrNoHosts = errors.New("no hosts added")

type Consistent struct {
	hosts     map[uint64]string
	sortedSet []uint64
	members   map[string]struct{}

	sync.RWMutex
}

func NewCircle() *Consistent {
	return &Consistent{
		hosts:     map[uint64]string{},
		sortedSet: []uint64{},
		members:   map[string]struct{}{},
	}
}

func (c *Consistent) MarkHealthy(host string) error {
	c.Lock()
	defer c.Unlock()

	if _, ok := c.members[host]; ok {
		return nil
	}

	c.members[host] = struct{}{}
	for i := range replicationFactor {
		h := c.hash(fmt.Sprintf("%s%d", host, i))
		c.hosts[h] = host
		c.sortedSet = append(c.sortedSet, h)
	}
	slices.Sort(c.sortedSet)
	return nil
}

func (c *Consistent) MarkUnhealthy(host string) error {
	c.Lock()
	defer c.Unlock()

	if _, ok := c.members[host]; !ok {
		return nil
	}
	for i := range replicationFactor {
		h := c.hash(fmt.Sprintf("%s%d", host, i))
		delete(c.hosts, h)
		c.delSlice(h)
	}
	delete(c.members, host)
	return nil
}

func (c *Consistent) Get(key uint64) (string, error) {
	return c.GetWithOffset(key, 0)
}

// GetWithOffset returns the offset-th distinct host clockwise from key.
// When offset is not smaller than the number of hosts the first host of the
// ring is returned.
func (c *Consistent) GetWithOffset(key uint64, offset uint) (string, error) {
	c.RLock()
	defer c.RUnlock()

	if len(c.hosts) == 0 {
		return "", ErrNoHosts
	}
	if uint(len(c.members)) <= offset {
		return c.hosts[c.sortedSet[0]], nil
	}
	var (
		h          = c.hash(strconv.FormatUint(key, 10))
		idx        = c.search(h)
		sourceHost = c.hosts[c.sortedSet[idx]]
		seenHosts  = map[string]struct{}{
			sourceHost: {},
		}
		candidate = sourceHost
	)
	for k := offset; k > 0; {
		idx = (idx + 1) % len(c.sortedSet)
		candidate = c.hosts[c.sortedSet[idx]]
		if _, seen := seenHosts[candidate]; !seen {
			k--
			seenHosts[candidate] = struct{}{}
		}
	}
	return candidate, nil
}

func (c *Consistent) Hosts() []string {
	c.RLock()
	defer c.RUnlock()

	hosts := make([]string, 0, len(c.members))
	for host := range c.members {
		hosts = append(hosts, host)
	}
	slices.Sort(hosts)
	return hosts
}

func (c *Consistent) search(key uint64) int {
	idx := sort.Search(len(c.sortedSet), func(i int) bool {
		return c.sortedSet[i] >= key
	})

	if idx >= len(c.sortedSet) {
		idx = 0
	}
	return idx
}

func (c *Consistent) delSlice(val uint64) {
	idx, found := slices.BinarySearch(c.sortedSet, val)
	if found {
		c.sortedSet = slices.Delete(c.sortedSet, idx, idx+1)
	}
}

func (c *Consistent) hash(key string) uint64 {
	out := blake2b.Sum512([]byte(key))
	return binary.LittleEndian.Uint64(out[:])
}
