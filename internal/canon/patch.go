package canon

import (
	"fmt"

	"github.com/wbarena/arena/internal/core"
)

// Apply applies patch to doc copy-on-write: doc is never mutated, and on
// any op failure the returned error carries no partial document. Array
// "-" appends; numeric indices must be in range; test fails the whole
// patch if the current value is not deep-equal to the supplied value.
func Apply(doc map[string]interface{}, patch core.Patch) (map[string]interface{}, error) {
	working := deepCopyValue(doc).(map[string]interface{})
	var current interface{} = working

	for i, op := range patch {
		var err error
		switch op.Op {
		case core.PatchAdd:
			current, err = mutate(current, op.Path, addFn(op.Value))
		case core.PatchRemove:
			current, err = mutate(current, op.Path, removeFn())
		case core.PatchReplace:
			current, err = mutate(current, op.Path, replaceFn(op.Value))
		case core.PatchMove:
			var v interface{}
			v, err = getAtPointer(current, op.From)
			if err == nil {
				moved := deepCopyValue(v)
				current, err = mutate(current, op.From, removeFn())
				if err == nil {
					current, err = mutate(current, op.Path, addFn(moved))
				}
			}
		case core.PatchCopy:
			var v interface{}
			v, err = getAtPointer(current, op.From)
			if err == nil {
				current, err = mutate(current, op.Path, addFn(deepCopyValue(v)))
			}
		case core.PatchTest:
			var v interface{}
			v, err = getAtPointer(current, op.Path)
			if err == nil && !jsonEqual(v, op.Value) {
				err = fmt.Errorf("test failed at %s", op.Path)
			}
		default:
			err = fmt.Errorf("unsupported patch op: %q", op.Op)
		}
		if err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}

	return current.(map[string]interface{}), nil
}
