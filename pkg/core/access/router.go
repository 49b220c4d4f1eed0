// Package access decides where a visitor belongs based on their session and role.
package access

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// Gateway is the part of the backend the router and gate need
type Gateway interface {
	gateway.Sessions
	gateway.Roles
}

// ResolveDestination picks the landing view for the current session.
// It makes at most two sequential backend calls (session, then role), writes
// nothing, and never lands on a dashboard when either call fails.
func ResolveDestination(ctx context.Context, gw Gateway, logger *zap.Logger) model.Destination {
	identity, err := gw.CurrentIdentity(ctx)
	if err != nil || identity == "" {
		logSessionFailure(logger, err)
		return model.DestinationLogin
	}

	role, err := gw.GetRole(ctx, identity)
	if err != nil {
		logger.Debug("Role lookup failed, routing to profile completion",
			zap.String("identity", string(identity)),
			zap.Error(err))
		return model.DestinationProfileCompletion
	}

	dest, ok := model.DashboardFor(role)
	if !ok {
		logger.Debug("No usable role, routing to profile completion",
			zap.String("identity", string(identity)),
			zap.String("role", string(role)))
		return model.DestinationProfileCompletion
	}

	logger.Debug("Resolved destination",
		zap.String("identity", string(identity)),
		zap.String("destination", string(dest)))
	return dest
}

func logSessionFailure(logger *zap.Logger, err error) {
	switch {
	case err == nil, errors.Is(err, gateway.ErrAuthenticationRequired):
		logger.Debug("No active session, routing to login")
	default:
		logger.Warn("Session lookup failed, routing to login", zap.Error(err))
	}
}
