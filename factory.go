package bridge

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registry resolves URL schemes to backend factories. Factories are queried
// in order and the first one advertising the scheme wins.
type Registry struct {
	Factories []Factory
	Logger    zerolog.Logger
}

// DefaultRegistry prefers SSH, then FTP, then plain HTTP.
var DefaultRegistry = &Registry{
	Factories: []Factory{
		&SFTPFactory{},
		&FTPFactory{},
		&HTTPFactory{},
		// add more
	},
	Logger: log.With().Str("module", "bridge").Logger(),
}

func (r *Registry) lookup(scheme string) Factory {
	for _, factory := range r.Factories {
		for _, p := range factory.Protocols() {
			if p == scheme {
				return factory
			}
		}
	}
	return nil
}

// Protocols returns the deduplicated union of every factory's advertised
// schemes, whether or not the backend is usable in this build.
func (r *Registry) Protocols() []string {
	seen := make(map[string]bool)
	var protocols []string
	for _, factory := range r.Factories {
		for _, p := range factory.Protocols() {
			if seen[p] {
				continue
			}
			seen[p] = true
			protocols = append(protocols, p)
		}
	}
	return protocols
}

// BackendInfo describes one registered backend.
type BackendInfo struct {
	Name      string
	Protocols []string
	Options   []string
	// Unavailable is the reason the backend cannot be used, nil if it can.
	Unavailable error
}

// Describe reports every registered backend in priority order.
func (r *Registry) Describe() []BackendInfo {
	infos := make([]BackendInfo, 0, len(r.Factories))
	for _, factory := range r.Factories {
		info := BackendInfo{
			Name:        factory.Name(),
			Protocols:   factory.Protocols(),
			Unavailable: factory.Available(),
		}
		if o, ok := factory.(interface{ OptionNames() []string }); ok {
			info.Options = o.OptionNames()
		}
		infos = append(infos, info)
	}
	return infos
}

// AvailableProtocols lists every scheme known to DefaultRegistry.
func AvailableProtocols() []string {
	return DefaultRegistry.Protocols()
}
