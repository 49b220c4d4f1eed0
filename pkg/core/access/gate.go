package access

import (
	"context"

	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
)

// Decision is the outcome of the access gate
type Decision struct {
	Allowed  bool
	Redirect model.Destination // set when Allowed is false
	Identity model.Identity
	Role     model.Role
}

// CheckAccess guards a protected view. It only decides whether the view may
// render; choosing a dashboard is ResolveDestination's job.
func CheckAccess(ctx context.Context, gw Gateway, logger *zap.Logger) Decision {
	identity, err := gw.CurrentIdentity(ctx)
	if err != nil || identity == "" {
		logSessionFailure(logger, err)
		return Decision{Redirect: model.DestinationLogin}
	}

	role, err := gw.GetRole(ctx, identity)
	if err != nil || !role.IsValid() {
		logger.Debug("Access gate found no usable role",
			zap.String("identity", string(identity)),
			zap.String("role", string(role)),
			zap.Error(err))
		return Decision{Redirect: model.DestinationProfileCompletion, Identity: identity}
	}

	return Decision{Allowed: true, Identity: identity, Role: role}
}

// Authorize is CheckAccess followed by a role restriction. A signed-in user
// with a role outside allowed is denied without a redirect.
func Authorize(ctx context.Context, gw Gateway, logger *zap.Logger, allowed ...model.Role) (Decision, bool) {
	d := CheckAccess(ctx, gw, logger)
	if !d.Allowed || len(allowed) == 0 {
		return d, d.Allowed
	}
	for _, r := range allowed {
		if d.Role == r {
			return d, true
		}
	}
	logger.Info("Role not permitted for view",
		zap.String("identity", string(d.Identity)),
		zap.String("role", string(d.Role)))
	return d, false
}
