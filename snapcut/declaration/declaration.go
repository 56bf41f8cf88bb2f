// Package declaration reads the desired snap state of a fleet from an INI or
// YAML file.
//
// INI layout:
//
//	[hosts.web]
//	web1 = 10.0.0.10
//	web2 = 10.0.0.11
//
//	[snap.juju]
//	state   = latest
//	channel = 3/stable
//	classic = true
//
// YAML layout:
//
//	hosts:
//	  web: [10.0.0.10, 10.0.0.11]
//	snaps:
//	  - name: juju
//	    state: latest
//	    channel: 3/stable
//	    classic: true
package declaration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/steelcutops/snapcut/snapcut/snap"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const (
	hostsPrefix = "hosts."
	snapPrefix  = "snap."
)

// Snap is the desired state of one snap.
type Snap struct {
	Name    string `yaml:"name"`
	State   string `yaml:"state"`
	Channel string `yaml:"channel,omitempty"`
	Classic bool   `yaml:"classic,omitempty"`
}

type Declaration struct {
	// Hosts maps a group name to host addresses.
	Hosts map[string][]string `yaml:"hosts"`
	Snaps []Snap              `yaml:"snaps"`
}

// Batch is a set of snaps sharing the same target parameters, reconciled
// together.
type Batch struct {
	State   snap.State
	Channel string
	Classic bool
	Names   []string
}

// Load reads a declaration, choosing the format from the file extension.
// Anything that is not .yaml or .yml is parsed as INI.
func Load(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d *Declaration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		d, err = ParseYAML(data)
	default:
		d, err = ParseINI(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid declaration %s: %w", path, err)
	}
	return d, nil
}

func ParseINI(data []byte) (*Declaration, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, err
	}

	d := &Declaration{Hosts: make(map[string][]string)}
	for _, section := range cfg.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, hostsPrefix):
			group := strings.TrimPrefix(name, hostsPrefix)
			for _, key := range section.Keys() {
				d.Hosts[group] = append(d.Hosts[group], key.String())
			}
		case strings.HasPrefix(name, snapPrefix):
			d.Snaps = append(d.Snaps, Snap{
				Name:    strings.TrimPrefix(name, snapPrefix),
				State:   section.Key("state").MustString(string(snap.Latest)),
				Channel: section.Key("channel").String(),
				Classic: section.Key("classic").MustBool(false),
			})
		}
	}
	return d, nil
}

func ParseYAML(data []byte) (*Declaration, error) {
	var d Declaration
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	for i := range d.Snaps {
		if d.Snaps[i].State == "" {
			d.Snaps[i].State = string(snap.Latest)
		}
	}
	return &d, nil
}

// Validate reports every problem in the declaration at once.
func (d *Declaration) Validate() error {
	var result *multierror.Error

	seen := make(map[string]bool)
	for i, s := range d.Snaps {
		if s.Name == "" {
			result = multierror.Append(result, fmt.Errorf("snap #%d has no name", i+1))
			continue
		}
		if seen[s.Name] {
			result = multierror.Append(result, fmt.Errorf("snap %q declared more than once", s.Name))
		}
		seen[s.Name] = true
		if _, err := snap.ParseState(s.State); err != nil {
			result = multierror.Append(result, fmt.Errorf("snap %q: %w", s.Name, err))
		}
	}
	for group, hosts := range d.Hosts {
		for _, h := range hosts {
			if strings.TrimSpace(h) == "" {
				result = multierror.Append(result, fmt.Errorf("host group %q has an empty address", group))
			}
		}
	}

	return result.ErrorOrNil()
}

// AllHosts returns every host address once, in group then declaration order.
func (d *Declaration) AllHosts() []string {
	groups := make([]string, 0, len(d.Hosts))
	for group := range d.Hosts {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	var hosts []string
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, h := range d.Hosts[group] {
			if !seen[h] {
				seen[h] = true
				hosts = append(hosts, h)
			}
		}
	}
	return hosts
}

// Batches groups the snaps by target parameters, keeping declaration order
// both between and within batches. Channel and classic do not split removals.
// The declaration must be valid.
func (d *Declaration) Batches() []Batch {
	type key struct {
		state   snap.State
		channel string
		classic bool
	}

	var batches []Batch
	index := make(map[key]int)
	for _, s := range d.Snaps {
		state, err := snap.ParseState(s.State)
		if err != nil {
			continue
		}
		k := key{state: state, channel: s.Channel, classic: s.Classic}
		if state == snap.Absent {
			k = key{state: state}
		}

		i, ok := index[k]
		if !ok {
			i = len(batches)
			index[k] = i
			batches = append(batches, Batch{State: k.state, Channel: k.channel, Classic: k.classic})
		}
		batches[i].Names = append(batches[i].Names, s.Name)
	}
	return batches
}
