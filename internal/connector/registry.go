package connector

import (
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
)

// Registry maps exchange codes to their connectors.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry creates a registry over the given connectors.
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Name()] = c
	}
	return r
}

// Get returns the connector for an exchange code.
func (r *Registry) Get(code string) (Connector, error) {
	c, ok := r.connectors[code]
	if !ok {
		return nil, errors.NewErrorDetails(
			"no connector registered for exchange",
			string(errors.ConnectorUnavailableError),
			code,
		)
	}
	return c, nil
}

// All returns every registered connector.
func (r *Registry) All() []Connector {
	out := make([]Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	return out
}
