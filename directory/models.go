package directory

import "github.com/go-ldap/ldap/v3"

// Attributes holds the values of one directory entry keyed by attribute name.
type Attributes map[string][]string

// First returns the first value of name, or "" if the attribute is absent.
func (a Attributes) First(name string) string {
	if vals := a[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func attributesFromEntry(entry *ldap.Entry, names []string) Attributes {
	attrs := make(Attributes, len(names))
	for _, name := range names {
		if vals := entry.GetEqualFoldAttributeValues(name); len(vals) > 0 {
			attrs[name] = vals
		}
	}
	return attrs
}

// Change replaces every value of Attribute with Values.
type Change struct {
	Attribute string
	Values    []string
}
