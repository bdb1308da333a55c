// Package activation holds the types shared by the dispatcher pipeline:
// activation contexts, module descriptors and load results.
package activation

import "context"

// Context identifies one activation opportunity: a rendered view within a
// scene, or the scene itself when ViewID is empty.
type Context struct {
	SceneID string
	ViewID  string
}

// NewContext returns the activation context for the given scene and view.
func NewContext(sceneID, viewID string) Context {
	return Context{SceneID: sceneID, ViewID: viewID}
}

// Key returns the composite ledger key of the context.
// View contexts are keyed "scene-view", scene contexts by the scene alone.
func (c Context) Key() string {
	if c.IsScene() {
		return c.SceneID
	}
	return c.SceneID + "-" + c.ViewID
}

// IsScene reports whether the context refers to a whole scene.
func (c Context) IsScene() bool {
	return c.ViewID == ""
}

func (c Context) String() string {
	return c.Key()
}

type ctxKey int

const (
	ctxKeyActivation ctxKey = iota
	ctxKeySessionID
)

// WithActivation adds the activation context to ctx.
func WithActivation(ctx context.Context, actx Context) context.Context {
	return context.WithValue(ctx, ctxKeyActivation, actx)
}

// GetActivation returns the activation context attached to ctx.
func GetActivation(ctx context.Context) (Context, bool) {
	actx, ok := ctx.Value(ctxKeyActivation).(Context)
	return actx, ok
}

// WithSessionID adds the dispatcher session identifier to ctx.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sid)
}

// GetSessionID returns the dispatcher session identifier attached to ctx.
func GetSessionID(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySessionID).(string)
	return s
}
