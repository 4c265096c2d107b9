// Package cmd provides common initialization for the flowpilot binaries.
package cmd

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/actions/assignuser"
	"github.com/flowpilot-io/flowpilot/pkg/actions/createtask"
	"github.com/flowpilot-io/flowpilot/pkg/actions/sendemail"
	"github.com/flowpilot-io/flowpilot/pkg/actions/updatefield"
	"github.com/flowpilot-io/flowpilot/pkg/crm"
	"github.com/flowpilot-io/flowpilot/pkg/rotation"
)

// NewRegistry builds the action registry wired against the CRM backend.
// Round-robin assignment state lives in Redis when a URL is given, in
// memory otherwise.
func NewRegistry(logger *slog.Logger, backend *crm.Client, redisURL string) *actions.Registry {
	registry := actions.NewRegistry(logger)

	registry.Register(updatefield.NewActionFactory(backend))
	registry.Register(createtask.NewActionFactory(backend))
	registry.Register(sendemail.NewActionFactory(backend, backend, backend))
	registry.Register(assignuser.NewActionFactory(backend, NewRotationStore(redisURL)))

	return registry
}

// NewRotationStore builds the round-robin cursor store.
func NewRotationStore(redisURL string) rotation.Store {
	if redisURL == "" {
		return rotation.NewMemoryStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic("Invalid Redis URL: " + err.Error())
	}

	return rotation.NewRedisStore(redis.NewClient(opts))
}
