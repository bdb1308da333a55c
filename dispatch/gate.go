package dispatch

import (
	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/hostevent"
	"github.com/builderkit/modloader/log"
)

// Gate turns raw lifecycle events into activation contexts.
type Gate struct {
	state  *State
	logger *log.Logger
}

// NewGate returns a gate updating state.
func NewGate(state *State, logger *log.Logger) *Gate {
	return &Gate{state: state, logger: logger}
}

// OnLifecycleEvent returns the activation context of a render event, or nil
// when the event carries no usable key or is not a render event.
//
// A render for a scene other than the last observed one resets the
// per-scene state, ledger included. Scene renders clear the navigation flag
// and hash changes set it.
func (g *Gate) OnLifecycleEvent(ev hostevent.Event) *activation.Context {
	switch ev.Name {
	case hostevent.EventSceneRender:
		if ev.Payload.Key == "" {
			g.logger.Debugf("Gate:OnLifecycleEvent", "scene render without key")
			return nil
		}
		if g.state.resetScene(ev.Payload.Key) {
			g.logger.Debugf("Gate:OnLifecycleEvent", "scene:%s new scene, state reset gen:%d",
				ev.Payload.Key, g.state.Ledger().Generation())
		}
		g.state.setNavigating(false)
		actx := activation.NewContext(ev.Payload.Key, "")
		return &actx

	case hostevent.EventHashChange:
		g.state.setNavigating(true)
		g.logger.Debugf("Gate:OnLifecycleEvent", "navigating to %q", ev.Payload.Hash)
		return nil

	case hostevent.EventViewRender:
		actx, ok := g.viewContext(ev.Payload)
		if !ok {
			return nil
		}
		return &actx

	default:
		return nil
	}
}

// viewContext builds the context of a view event. Events that do not name
// their scene belong to the last rendered scene. Events naming a scene that
// was not rendered yet start it, so the scene render that follows finds the
// ledger already in place.
func (g *Gate) viewContext(p hostevent.Payload) (activation.Context, bool) {
	if p.Key == "" {
		g.logger.Debugf("Gate:viewContext", "view event without key")
		return activation.Context{}, false
	}
	scene := p.Scene
	if scene == "" {
		scene = g.state.Ledger().Scene()
	} else if g.state.resetScene(scene) {
		g.logger.Debugf("Gate:viewContext", "view:%s scene:%s rendered ahead of its scene, state reset gen:%d",
			p.Key, scene, g.state.Ledger().Generation())
	}
	if scene == "" {
		g.logger.Debugf("Gate:viewContext", "view:%s before any scene render", p.Key)
		return activation.Context{}, false
	}
	return activation.NewContext(scene, p.Key), true
}
