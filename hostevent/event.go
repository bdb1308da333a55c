// Package hostevent carries lifecycle events from the host platform to the
// dispatcher: the wire envelope, an in-process emitter and a websocket feed.
package hostevent

//go:generate easyjson -all event.go

import (
	"github.com/mailru/easyjson"
)

const (
	// EventSceneRender is emitted when a scene (page) finished rendering.
	EventSceneRender string = "scene.render"

	// EventViewRender is emitted when a view (widget) finished rendering.
	EventViewRender string = "view.render"

	// EventHashChange is emitted when the page URL hash changes.
	EventHashChange string = "hash.change"

	// EventHostReady is emitted once the host's global context is populated.
	EventHostReady string = "host.ready"

	// EventViewFragment carries the rendered HTML of a view.
	EventViewFragment string = "view.fragment"
)

// Envelope is the wire format of a host message:
// {"event":"view.render","data":{"key":"view_3005","scene":"scene_1206"}}.
type Envelope struct {
	Event string              `json:"event"`
	Data  easyjson.RawMessage `json:"data"`
}

// Payload is the union of the fields host events carry.
type Payload struct {
	// Key is the scene or view key of render and fragment events.
	Key string `json:"key"`
	// Scene is the enclosing scene key of view events, when known.
	Scene string `json:"scene"`
	Hash  string `json:"hash"`
	HTML  string `json:"html"`
	// Token and UserID are the call-time credentials of host.ready.
	Token  string `json:"token"`
	UserID string `json:"userId"`
	// Config is the host's page-global configuration object, keyed by module.
	Config map[string]interface{} `json:"config"`
}

// Event is a decoded host event.
type Event struct {
	Name    string
	Payload Payload
}

// Decode decodes a raw host message.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := easyjson.Unmarshal(data, &env); err != nil {
		return Event{}, err
	}
	ev := Event{Name: env.Event}
	if len(env.Data) == 0 {
		return ev, nil
	}
	if err := easyjson.Unmarshal(env.Data, &ev.Payload); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Encode encodes an event into its wire form.
func Encode(ev Event) ([]byte, error) {
	data, err := easyjson.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	return easyjson.Marshal(Envelope{Event: ev.Name, Data: data})
}
