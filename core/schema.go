package core

// Property describes a single named property of an object type.
type Property struct {
	Name string
	Type string
}

// ObjectSchema describes one object type stored in a file. The position of an
// ObjectSchema within a Schema is its table index, which is how change
// information addresses it.
type ObjectSchema struct {
	Name       string
	Properties []Property
}

// Schema is the ordered list of object types stored in a file.
//
// The coordination layer treats the schema as opaque configuration data: it is
// carried, compared and replaced, but never validated against stored objects.
type Schema []ObjectSchema

// TableIndex returns the table index of the object type with the given name,
// or false if the schema does not contain it.
func (s Schema) TableIndex(name string) (uint32, bool) {
	for i, os := range s {
		if os.Name == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// Equal reports whether two schemas define the same object types in the same
// order with the same properties.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name || len(s[i].Properties) != len(o[i].Properties) {
			return false
		}
		for j := range s[i].Properties {
			if s[i].Properties[j] != o[i].Properties[j] {
				return false
			}
		}
	}
	return true
}
