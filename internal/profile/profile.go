// Package profile loads optional per-retailer site profiles from a YAML
// file. A profile narrows the plausible price band, adds boilerplate
// phrases for the description validator, and slows pacing for hosts
// known to be touchy.
package profile

import (
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile overrides patrol defaults for one retailer host. Zero-valued
// fields inherit the global setting.
type Profile struct {
	// Host matches the source URL's hostname, including subdomains
	// ("example.com" matches "shop.example.com").
	Host string `yaml:"host"`

	MinPrice float64 `yaml:"min_price,omitempty"`
	MaxPrice float64 `yaml:"max_price,omitempty"`

	// Boilerplate lists phrases that disqualify a description candidate
	// on this host, on top of the built-in set.
	Boilerplate []string `yaml:"boilerplate,omitempty"`

	// Pacing, in seconds.
	PauseAfterLoadMinSecs int `yaml:"pause_after_load_min_secs,omitempty"`
	PauseAfterLoadMaxSecs int `yaml:"pause_after_load_max_secs,omitempty"`
}

// Set holds the loaded profiles.
type Set struct {
	profiles []Profile
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Load reads a profiles YAML file. A missing path is not an error; it
// yields an empty set so callers need no nil checks.
func Load(path string) (*Set, error) {
	if path == "" {
		return &Set{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Set{}, nil
		}
		return nil, eris.Wrapf(err, "profile: read %s", path)
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrapf(err, "profile: parse %s", path)
	}

	for i, p := range pf.Profiles {
		if p.Host == "" {
			return nil, eris.Errorf("profile: entry %d has no host", i)
		}
		if p.MaxPrice != 0 && p.MaxPrice < p.MinPrice {
			return nil, eris.Errorf("profile: %s: max_price below min_price", p.Host)
		}
	}

	return &Set{profiles: pf.Profiles}, nil
}

// Len reports how many profiles are loaded.
func (s *Set) Len() int {
	return len(s.profiles)
}

// Lookup returns the profile matching the URL's host. The longest
// matching host wins when profiles nest ("shop.example.com" over
// "example.com").
func (s *Set) Lookup(rawURL string) (Profile, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Profile{}, false
	}
	host := strings.ToLower(u.Hostname())

	var best Profile
	var found bool
	for _, p := range s.profiles {
		ph := strings.ToLower(p.Host)
		if host != ph && !strings.HasSuffix(host, "."+ph) {
			continue
		}
		if !found || len(ph) > len(best.Host) {
			best = p
			found = true
		}
	}
	return best, found
}

// PriceBand returns the plausible band for the URL, falling back to the
// given defaults for unset fields.
func (s *Set) PriceBand(rawURL string, defMin, defMax float64) (float64, float64) {
	p, ok := s.Lookup(rawURL)
	if !ok {
		return defMin, defMax
	}
	min, max := defMin, defMax
	if p.MinPrice != 0 {
		min = p.MinPrice
	}
	if p.MaxPrice != 0 {
		max = p.MaxPrice
	}
	return min, max
}

// ExtraBoilerplate returns every boilerplate phrase contributed by any
// loaded profile. The validator is built once per batch, so host
// scoping happens by keeping per-host phrase lists specific.
func (s *Set) ExtraBoilerplate() []string {
	var out []string
	for _, p := range s.profiles {
		out = append(out, p.Boilerplate...)
	}
	return out
}
