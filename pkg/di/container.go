// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/pinkv/pkg/api"     //nolint:depguard
	"github.com/ssargent/pinkv/pkg/backend" //nolint:depguard
)

// Container holds all the dependencies for the application
type Container struct {
	engineOpener  backend.Opener
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		engineOpener:  backend.Open,
		serverFactory: api.NewServerFactory(),
	}
}

// GetEngineOpener returns the function used to open the configured engine
func (c *Container) GetEngineOpener() backend.Opener {
	return c.engineOpener
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetEngineOpener allows overriding the engine opener (for testing)
func (c *Container) SetEngineOpener(opener backend.Opener) {
	c.engineOpener = opener
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
