// Package route decides which module, if any, an activation context needs.
package route

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/config"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/otel"
	"github.com/builderkit/modloader/records"
)

var errNoLookup = errors.New("no account lookup configured")

// AccountLookup fetches the remote account state of the current user.
type AccountLookup interface {
	Lookup(ctx context.Context, actx activation.Context) (records.AccountContext, error)
}

// Remote pairs a remote route with the lookup that feeds it.
type Remote struct {
	Route  *config.RemoteRoute
	Lookup AccountLookup
}

// Resolver maps activation contexts to module descriptors.
type Resolver struct {
	static  map[activation.RouteMatcher]*activation.Descriptor
	remotes []Remote
	logger  *log.Logger
}

// NewResolver builds a resolver from the static descriptor table and the
// remote routes. It fails with config.ErrAmbiguousRoute when one scene and
// view pair is routed to more than one descriptor.
func NewResolver(descs []*activation.Descriptor, remotes []Remote, logger *log.Logger) (*Resolver, error) {
	static := make(map[activation.RouteMatcher]*activation.Descriptor)
	for _, d := range descs {
		for _, m := range d.Routes {
			if other, ok := static[m]; ok && other.ID != d.ID {
				return nil, fmt.Errorf("%w: scene %q view %q routed to both %q and %q",
					config.ErrAmbiguousRoute, m.SceneID, m.ViewID, other.ID, d.ID)
			}
			static[m] = d
		}
	}
	for _, r := range remotes {
		if r.Route == nil || r.Route.Default == nil {
			return nil, fmt.Errorf("%w: remote route without default module", config.ErrInvalidConfig)
		}
		for value, d := range r.Route.Branches {
			if d == nil {
				return nil, fmt.Errorf("%w: remote route %q: branch %q has no module",
					config.ErrInvalidConfig, r.Route.ID, value)
			}
		}
	}

	return &Resolver{
		static:  static,
		remotes: remotes,
		logger:  logger,
	}, nil
}

// Resolve returns the descriptor actx needs, or nil when it needs none.
// Static routes win without any remote call. A remote route issues exactly
// one lookup and falls back to its default module when the lookup fails or
// yields a value without a branch.
func (r *Resolver) Resolve(ctx context.Context, actx activation.Context) *activation.Descriptor {
	if d := r.ResolveStatic(actx); d != nil {
		return d
	}
	for _, rr := range r.remotes {
		if rr.Route.Eligible(actx) {
			return r.resolveRemote(ctx, rr, actx)
		}
	}
	return nil
}

// ResolveStatic consults the static table only.
func (r *Resolver) ResolveStatic(actx activation.Context) *activation.Descriptor {
	return r.static[activation.RouteMatcher{SceneID: actx.SceneID, ViewID: actx.ViewID}]
}

func (r *Resolver) resolveRemote(ctx context.Context, rr Remote, actx activation.Context) *activation.Descriptor {
	ctx, span := otel.TraceActivation(ctx, "route.resolveRemote", actx, "")
	defer span.End()
	span.SetAttributes(attribute.String("route.id", rr.Route.ID))

	var (
		acct records.AccountContext
		err  = errNoLookup
	)
	if rr.Lookup != nil {
		acct, err = rr.Lookup.Lookup(ctx, actx)
	}
	if err != nil {
		span.RecordError(err)
		r.logger.Warnf("Resolver:remote", "key:%s route:%s lookup failed, using %q: %v",
			actx.Key(), rr.Route.ID, rr.Route.Default.ID, err)
		return rr.Route.Default
	}
	if !acct.AccountType.Valid {
		r.logger.Debugf("Resolver:remote", "key:%s route:%s no account type, using %q",
			actx.Key(), rr.Route.ID, rr.Route.Default.ID)
		return rr.Route.Default
	}

	d := rr.Route.Branch(acct.AccountType.String)
	span.SetAttributes(
		attribute.String("account.type", acct.AccountType.String),
		attribute.String("module.id", d.ID),
	)
	r.logger.Debugf("Resolver:remote", "key:%s route:%s account type %q -> %q",
		actx.Key(), rr.Route.ID, acct.AccountType.String, d.ID)
	return d
}
