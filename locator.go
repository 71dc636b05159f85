package main

import (
	"strings"

	"github.com/pkg/errors"
)

// Location is where a policy lives on a controller and how it is judged.
type Location struct {
	Name      string
	Class     string
	DN        string
	WriteDN   string
	ReadPath  string
	WritePath string
	Satisfied Predicate
}

// locate resolves spec to concrete addresses. name is ignored for
// singletons and falls back to spec.DefaultName for named policies.
func locate(spec PolicySpec, name string) (Location, error) {
	loc := Location{
		Class:     spec.Class,
		Satisfied: spec.Satisfied,
	}
	dn, writeDN := spec.DN, spec.WriteDN
	if !spec.Singleton {
		if name == "" {
			name = spec.DefaultName
		}
		if name == "" {
			return Location{}, errors.Errorf("policy %s needs an object name", spec.Name)
		}
		if strings.ContainsAny(name, "/[]{}?&#% ") {
			return Location{}, errors.Errorf("invalid object name %q", name)
		}
		dn = strings.ReplaceAll(dn, nameToken, name)
		writeDN = strings.ReplaceAll(writeDN, nameToken, name)
		loc.Name = name
	} else {
		loc.Name = spec.Name
	}
	if writeDN == "" {
		writeDN = dn
	}
	loc.DN = dn
	loc.WriteDN = writeDN
	loc.ReadPath = "/api/mo/" + dn
	loc.WritePath = "/api/mo/" + writeDN
	return loc, nil
}
