package storecore

import "reflect"

// fieldByName reads a top-level exported field off entity by name, either a
// plain struct or a struct embedded behind a pointer. Used by getters built
// from a GetterSpec.Key string. Panics (a programmer error, per §4.3) if the
// field does not exist.
func fieldByName[E any](entity *E, name string) any {
	v := reflect.ValueOf(entity).Elem()
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		panic(newErr(KindInternal, "Getter.Key requires a struct entity"))
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		panic(newErr(KindInternal, "unknown field in Getter.Key: "+name))
	}
	return f.Interface()
}
