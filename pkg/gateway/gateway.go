// Package gateway defines the backend contract consumed by the session router
// and the alert synchronizer, and the errors every backend implementation maps to.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jakechorley/donornet/pkg/core/model"
)

var (
	// ErrAuthenticationRequired means there is no active session
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrRoleUnresolved means the identity has no usable role
	ErrRoleUnresolved = errors.New("role unresolved")
	ErrNotFound       = errors.New("not found")
	// ErrPermissionDenied means the acting identity may not perform the operation
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransient wraps network and availability failures
	ErrTransient    = errors.New("backend unavailable")
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailTaken is returned when signing up with an email that already has an account
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrInvalidInput)
)

// Sessions resolves the identity behind the current session.
// Implementations return ErrAuthenticationRequired when there is none.
type Sessions interface {
	CurrentIdentity(ctx context.Context) (model.Identity, error)
}

// Roles looks up the role record of an identity.
// A missing record is ErrNotFound; a record with no role returns the unset role.
type Roles interface {
	GetRole(ctx context.Context, identity model.Identity) (model.Role, error)
}

// AlertStore is the authoritative alert set
type AlertStore interface {
	// ListAlerts returns every alert, newest first
	ListAlerts(ctx context.Context) ([]model.Alert, error)
	CreateAlert(ctx context.Context, author model.Identity, fields model.AlertFields) (model.Alert, error)
	// DeleteAlert fails with ErrPermissionDenied unless acting is the author
	DeleteAlert(ctx context.Context, id string, acting model.Identity) error
}

// AlertHandlers receive change-feed events in delivery order
type AlertHandlers struct {
	OnInsert func(model.Alert)
	OnDelete func(id string)
	// OnError is called when the feed breaks after subscribing. Optional.
	OnError func(error)
}

// Dispatch routes ev to the matching handler
func (h AlertHandlers) Dispatch(ev ChangeEvent) {
	switch ev.Op {
	case OpInsert:
		if h.OnInsert != nil {
			h.OnInsert(ev.Alert)
		}
	case OpDelete:
		if h.OnDelete != nil {
			h.OnDelete(ev.ID)
		}
	}
}

// Fail reports a feed failure to OnError, if set
func (h AlertHandlers) Fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Subscription is a held change-feed subscription. Close is idempotent.
type Subscription interface {
	Close() error
}

// AlertFeed opens change-feed subscriptions for the alert set
type AlertFeed interface {
	SubscribeToAlertChanges(ctx context.Context, handlers AlertHandlers) (Subscription, error)
}
