package storecore

// Getter reads a value off an entity of type E. Compile it once per
// EntityConfig/OrderBy field and reuse it — it is stateless.
type Getter[E any] func(entity *E) any

// GetterSpec names how to build a Getter: either a top-level field name
// (Key set, Get nil) or an explicit function (Get set). Nested paths are
// deliberately not parsed — callers that need them supply Get directly.
type GetterSpec[E any] struct {
	Key string
	Get Getter[E]
}

// CompileGetter turns a GetterSpec into a callable. Invoking the result on a
// nil entity is a programmer error (KindInternal), not a data condition.
func CompileGetter[E any](spec GetterSpec[E]) Getter[E] {
	if spec.Get != nil {
		fn := spec.Get
		return func(entity *E) any {
			if entity == nil {
				panic(newErr(KindInternal, "Getter invoked on a nil entity"))
			}
			return fn(entity)
		}
	}

	key := spec.Key
	return func(entity *E) any {
		if entity == nil {
			panic(newErr(KindInternal, "Getter invoked on a nil entity"))
		}
		return fieldByName(entity, key)
	}
}

// SimplifyGetter returns the canonical identity of a GetterSpec for use in
// filter/order keys: the field name when one was given, or a fixed sentinel
// for function-backed getters (which cannot be canonicalized by value).
func SimplifyGetter[E any](spec GetterSpec[E]) string {
	if spec.Key != "" {
		return spec.Key
	}
	return "<func>"
}
