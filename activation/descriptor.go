package activation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrConfigMissing is returned by config builders when the host did not
// supply configuration a module requires.
var ErrConfigMissing = errors.New("module configuration missing")

// Config is the configuration object handed to a module initializer.
type Config map[string]any

// ConfigBuilder builds the initializer configuration for an activation context.
type ConfigBuilder func(Context) (Config, error)

// RouteMatcher activates a module for an exact scene and view pair.
// An empty ViewID matches scene-level contexts only.
type RouteMatcher struct {
	SceneID string
	ViewID  string
}

// Matches reports whether the matcher selects actx.
func (m RouteMatcher) Matches(actx Context) bool {
	return m.SceneID == actx.SceneID && m.ViewID == actx.ViewID
}

// Descriptor describes one loadable module bundle and the routes that
// activate it. Descriptors are built once at startup and never mutated.
type Descriptor struct {
	ID          string
	SourceURL   string
	Routes      []RouteMatcher
	Initializer string
	BuildConfig ConfigBuilder
}

// Matches reports whether any route of the descriptor selects actx.
func (d *Descriptor) Matches(actx Context) bool {
	for _, r := range d.Routes {
		if r.Matches(actx) {
			return true
		}
	}
	return false
}

// InitializerName returns the global function the loader invokes after
// the bundle ran. It defaults to "initialize" followed by the camel-cased ID,
// e.g. "student-dashboard" becomes "initializeStudentDashboard".
func (d *Descriptor) InitializerName() string {
	if d.Initializer != "" {
		return d.Initializer
	}
	return InitializerFor(d.ID)
}

// Config builds the initializer configuration for actx. Descriptors
// without a builder get a config carrying the scene and view keys.
func (d *Descriptor) Config(actx Context) (Config, error) {
	if d.BuildConfig == nil {
		return Config{"sceneKey": actx.SceneID, "viewKey": actx.ViewID}, nil
	}
	return d.BuildConfig(actx)
}

// InitializerFor returns the conventional initializer name for a module ID.
func InitializerFor(id string) string {
	var b strings.Builder
	b.WriteString("initialize")
	for _, part := range strings.FieldsFunc(id, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}
	return b.String()
}
