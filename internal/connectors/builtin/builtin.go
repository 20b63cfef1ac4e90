// Package builtin registers the providers shipped with fleetsync.
package builtin

import (
	"net/http"

	"github.com/custodia-labs/fleetsync/internal/connectors"
	"github.com/custodia-labs/fleetsync/internal/connectors/demotms"
	"github.com/custodia-labs/fleetsync/internal/connectors/fleetcard"
	"github.com/custodia-labs/fleetsync/internal/core/ports/driven"
)

// Options are shared by every built-in provider.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
}

// Register adds every built-in provider to the factory.
func Register(f driven.ConnectorFactory, opts Options) {
	f.Register(demotms.Descriptor(), demotms.Builder(demotms.Options{
		HTTPClient: opts.HTTPClient,
		UserAgent:  opts.UserAgent,
	}))
	f.Register(fleetcard.Descriptor(), fleetcard.Builder(fleetcard.Options{
		HTTPClient: opts.HTTPClient,
		UserAgent:  opts.UserAgent,
	}))
}

// NewFactory returns a factory with every built-in provider registered.
func NewFactory(opts Options) *connectors.Factory {
	f := connectors.NewFactory()
	Register(f, opts)
	return f
}
