package api

import (
	"context"

	"github.com/ssargent/pinkv/pkg/engine"
)

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves eng until ctx is cancelled.
	StartServer(ctx context.Context, eng engine.Engine, config ServerConfig, deps Deps) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
