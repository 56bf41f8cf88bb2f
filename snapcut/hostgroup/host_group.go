package hostgroup

import (
	"fmt"
	"sort"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/steelcutops/snapcut/snapcut/host"
)

type HostGroup struct {
	sync.RWMutex
	Hosts map[string]*host.Host
}

// NewHostGroup creates a new HostGroup with the given hosts.
func NewHostGroup(hosts ...*host.Host) *HostGroup {
	hostMap := make(map[string]*host.Host)
	for _, h := range hosts {
		hostMap[h.Hostname] = h
	}
	return &HostGroup{Hosts: hostMap}
}

// AddHost adds a host to the HostGroup.
func (hg *HostGroup) AddHost(h *host.Host) {
	hg.Lock()
	defer hg.Unlock()
	hg.Hosts[h.Hostname] = h
}

// RemoveHost removes a host from the HostGroup by its hostname.
func (hg *HostGroup) RemoveHost(hostname string) {
	hg.Lock()
	defer hg.Unlock()
	delete(hg.Hosts, hostname)
}

// HasHost checks if a host with the given hostname exists in the HostGroup.
func (hg *HostGroup) HasHost(hostname string) bool {
	hg.RLock()
	defer hg.RUnlock()
	_, exists := hg.Hosts[hostname]
	return exists
}

// Hostnames returns the hostnames in sorted order.
func (hg *HostGroup) Hostnames() []string {
	hg.RLock()
	defer hg.RUnlock()
	names := make([]string, 0, len(hg.Hosts))
	for name := range hg.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Each runs action on every host with at most concurrency hosts in flight.
// Each host has its own snap cache, so hosts never share mutable state.
// The errors of all failed hosts are combined in hostname order.
func (hg *HostGroup) Each(concurrency int, action func(h *host.Host) error) error {
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	names := hg.Hostnames()
	hg.RLock()
	hosts := make([]*host.Host, 0, len(names))
	for _, name := range names {
		if h, ok := hg.Hosts[name]; ok {
			hosts = append(hosts, h)
		}
	}
	hg.RUnlock()

	errs := make([]error, len(hosts))
	var wg sync.WaitGroup
	for i, hst := range hosts {
		wg.Add(1)
		go func(i int, h *host.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := action(h); err != nil {
				errs[i] = fmt.Errorf("error while processing host %s: %w", h.Hostname, err)
			}
		}(i, hst)
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
