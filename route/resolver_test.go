package route

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/builderkit/modloader/activation"
	"github.com/builderkit/modloader/config"
	"github.com/builderkit/modloader/log"
	"github.com/builderkit/modloader/records"
)

type lookupStub struct {
	calls int64
	acct  records.AccountContext
	err   error
}

func (l *lookupStub) Lookup(context.Context, activation.Context) (records.AccountContext, error) {
	atomic.AddInt64(&l.calls, 1)
	return l.acct, l.err
}

func descriptor(id string, routes ...activation.RouteMatcher) *activation.Descriptor {
	return &activation.Descriptor{ID: id, SourceURL: "https://cdn.example.com/" + id + ".js", Routes: routes}
}

func TestResolverStatic(t *testing.T) {
	t.Parallel()

	flashcards := descriptor("flashcards", activation.RouteMatcher{SceneID: "scene_1206", ViewID: "view_3005"})
	overview := descriptor("overview", activation.RouteMatcher{SceneID: "scene_1206"})
	r, err := NewResolver([]*activation.Descriptor{flashcards, overview}, nil, log.NewNullLogger())
	require.NoError(t, err)

	assert.Same(t, flashcards, r.Resolve(context.Background(), activation.NewContext("scene_1206", "view_3005")))
	assert.Same(t, overview, r.Resolve(context.Background(), activation.NewContext("scene_1206", "")))
	assert.Nil(t, r.Resolve(context.Background(), activation.NewContext("scene_1206", "view_9")))
	assert.Nil(t, r.Resolve(context.Background(), activation.NewContext("scene_7", "view_3005")))
}

func TestResolverAmbiguous(t *testing.T) {
	t.Parallel()

	route := activation.RouteMatcher{SceneID: "scene_1", ViewID: "view_1"}
	_, err := NewResolver([]*activation.Descriptor{
		descriptor("a", route),
		descriptor("b", route),
	}, nil, log.NewNullLogger())
	require.ErrorIs(t, err, config.ErrAmbiguousRoute)
	assert.Contains(t, err.Error(), `"a" and "b"`)
}

func TestResolverRemote(t *testing.T) {
	t.Parallel()

	remoteView := activation.RouteMatcher{SceneID: "scene_50", ViewID: "view_80"}
	student := descriptor("student-dashboard")
	tutor := descriptor("tutor-dashboard")

	tests := []struct {
		name string
		stub *lookupStub
		want *activation.Descriptor
	}{
		{
			name: "branch",
			stub: &lookupStub{acct: records.AccountContext{AccountType: null.StringFrom("Tutor")}},
			want: tutor,
		},
		{
			name: "unknown_value_falls_back",
			stub: &lookupStub{acct: records.AccountContext{AccountType: null.StringFrom("Parent")}},
			want: student,
		},
		{
			name: "missing_value_falls_back",
			stub: &lookupStub{},
			want: student,
		},
		{
			name: "lookup_error_falls_back",
			stub: &lookupStub{err: errors.New("records API unavailable")},
			want: student,
		},
		{
			name: "expired_token_falls_back",
			stub: &lookupStub{err: records.ErrTokenExpired},
			want: student,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := &config.RemoteRoute{
				ID:       "dashboard",
				Routes:   []activation.RouteMatcher{remoteView},
				Field:    "field_73",
				Default:  student,
				Branches: map[string]*activation.Descriptor{"Tutor": tutor},
			}
			r, err := NewResolver([]*activation.Descriptor{student, tutor},
				[]Remote{{Route: rr, Lookup: tt.stub}}, log.NewNullLogger())
			require.NoError(t, err)

			got := r.Resolve(context.Background(), activation.NewContext("scene_50", "view_80"))
			require.NotNil(t, got)
			assert.Same(t, tt.want, got)
			assert.EqualValues(t, 1, atomic.LoadInt64(&tt.stub.calls), "exactly one lookup, no retry")
		})
	}
}

func TestResolverStaticPriority(t *testing.T) {
	t.Parallel()

	shared := activation.RouteMatcher{SceneID: "scene_50", ViewID: "view_80"}
	pinned := descriptor("pinned", shared)
	fallback := descriptor("fallback")
	stub := &lookupStub{acct: records.AccountContext{AccountType: null.StringFrom("Tutor")}}

	r, err := NewResolver([]*activation.Descriptor{pinned, fallback}, []Remote{{
		Route: &config.RemoteRoute{
			ID:      "dashboard",
			Routes:  []activation.RouteMatcher{shared},
			Field:   "field_73",
			Default: fallback,
		},
		Lookup: stub,
	}}, log.NewNullLogger())
	require.NoError(t, err)

	assert.Same(t, pinned, r.Resolve(context.Background(), activation.NewContext("scene_50", "view_80")))
	assert.Zero(t, atomic.LoadInt64(&stub.calls))
}

func TestResolverNoLookup(t *testing.T) {
	t.Parallel()

	fallback := descriptor("fallback")
	r, err := NewResolver([]*activation.Descriptor{fallback}, []Remote{{
		Route: &config.RemoteRoute{
			ID:      "dashboard",
			Routes:  []activation.RouteMatcher{{SceneID: "scene_50"}},
			Default: fallback,
		},
	}}, log.NewNullLogger())
	require.NoError(t, err)

	assert.Same(t, fallback, r.Resolve(context.Background(), activation.NewContext("scene_50", "")))
}

func TestResolverRemoteWithoutDefault(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(nil, []Remote{{Route: &config.RemoteRoute{ID: "x"}}}, log.NewNullLogger())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestResolverRemoteNilBranch(t *testing.T) {
	t.Parallel()

	fallback := descriptor("fallback")
	_, err := NewResolver([]*activation.Descriptor{fallback}, []Remote{{
		Route: &config.RemoteRoute{
			ID:       "dashboard",
			Routes:   []activation.RouteMatcher{{SceneID: "scene_50"}},
			Default:  fallback,
			Branches: map[string]*activation.Descriptor{"Tutor": nil},
		},
		Lookup: &lookupStub{acct: records.AccountContext{AccountType: null.StringFrom("Tutor")}},
	}}, log.NewNullLogger())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), `branch "Tutor"`)
}
