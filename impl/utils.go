package impl

import (
	"reflect"

	"github.com/encodeous/nowmesh/state"
)

func Get[T state.MeshModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
