package main

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// nameToken is replaced by the policy object name in DN templates.
const nameToken = "{name}"

// Predicate decides whether an attribute map is in the desired state.
type Predicate func(attrs gjson.Result) bool

// attrEquals matches when attribute key equals any of values, ignoring case.
func attrEquals(key string, values ...string) Predicate {
	return func(attrs gjson.Result) bool {
		current := attrs.Get(key).Str
		for _, v := range values {
			if strings.EqualFold(current, v) {
				return true
			}
		}
		return false
	}
}

func anyOf(preds ...Predicate) Predicate {
	return func(attrs gjson.Result) bool {
		for _, p := range preds {
			if p(attrs) {
				return true
			}
		}
		return false
	}
}

func allOf(preds ...Predicate) Predicate {
	return func(attrs gjson.Result) bool {
		for _, p := range preds {
			if !p(attrs) {
				return false
			}
		}
		return true
	}
}

// Attrs is a flat APIC attribute map.
type Attrs map[string]string

// AssociationSpec describes how a policy is attached to a group by
// relation.
type AssociationSpec struct {
	// GroupClass is listed to find candidate groups, e.g. infraAccPortGrp.
	GroupClass string
	// Relation is the child relation class, e.g. infraRsMcpIfPol.
	Relation string
	// RelationAttr holds the policy name on the relation.
	RelationAttr string
	// Description names the groups in prompts.
	Description string
}

// PolicySpec declares one remote policy object and its desired state.
type PolicySpec struct {
	Name        string
	Description string
	// Action completes the confirmation question ("Do you want to ...").
	Action string
	Class  string
	// DN is either a fixed well-known DN or a template containing {name}.
	DN string
	// WriteDN overrides the write address when it differs from DN.
	WriteDN     string
	DefaultName string
	Singleton   bool
	Satisfied   Predicate
	// CreateAttrs are posted when the object is absent. A singleton
	// without CreateAttrs is created from PatchAttrs.
	CreateAttrs Attrs
	// PatchAttrs are posted when the object exists but is not satisfied.
	PatchAttrs  Attrs
	Association *AssociationSpec
}

func (spec PolicySpec) validate() error {
	switch {
	case spec.Name == "":
		return errors.New("policy has no name")
	case spec.Class == "":
		return errors.Errorf("policy %s: class is required", spec.Name)
	case spec.DN == "":
		return errors.Errorf("policy %s: dn is required", spec.Name)
	case spec.Satisfied == nil:
		return errors.Errorf("policy %s: no desired state", spec.Name)
	case len(spec.PatchAttrs) == 0 && len(spec.CreateAttrs) == 0:
		return errors.Errorf("policy %s: no attributes to write", spec.Name)
	case spec.Singleton && strings.Contains(spec.DN, nameToken):
		return errors.Errorf("policy %s: singleton dn %q must not contain %s", spec.Name, spec.DN, nameToken)
	case !spec.Singleton && !strings.Contains(spec.DN, nameToken):
		return errors.Errorf("policy %s: named policy dn %q must contain %s", spec.Name, spec.DN, nameToken)
	case spec.Association != nil && spec.Singleton:
		return errors.Errorf("policy %s: only named policies can be associated", spec.Name)
	case spec.Association != nil && (spec.Association.GroupClass == "" ||
		spec.Association.Relation == "" || spec.Association.RelationAttr == ""):
		return errors.Errorf("policy %s: incomplete association", spec.Name)
	}
	return nil
}

func sortedKeys(attrs Attrs) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// moPayload builds {"<class>":{"attributes":{...}}} with dn and status set.
// An empty dn is left out.
func moPayload(class, dn, status string, attrs Attrs) ([]byte, error) {
	prefix := class + ".attributes."
	var data []byte
	var err error
	if dn != "" {
		if data, err = sjson.SetBytes(data, prefix+"dn", dn); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(attrs) {
		if data, err = sjson.SetBytes(data, prefix+k, attrs[k]); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(data, prefix+"status", status)
}

func createPayload(spec PolicySpec, loc Location) ([]byte, error) {
	if len(spec.CreateAttrs) == 0 {
		return moPayload(spec.Class, loc.WriteDN, "created,modified", spec.PatchAttrs)
	}
	attrs := Attrs{}
	for k, v := range spec.CreateAttrs {
		attrs[k] = v
	}
	if !spec.Singleton {
		attrs["name"] = loc.Name
	}
	return moPayload(spec.Class, loc.WriteDN, "created", attrs)
}

func patchPayload(spec PolicySpec, loc Location) ([]byte, error) {
	attrs := spec.PatchAttrs
	if len(attrs) == 0 {
		attrs = spec.CreateAttrs
	}
	return moPayload(spec.Class, loc.WriteDN, "modified", attrs)
}

// associationPayload adds one relation child to a group without touching
// its other children.
func associationPayload(assoc *AssociationSpec, group GroupRef, policy string) ([]byte, error) {
	data, err := moPayload(assoc.GroupClass, group.DN, "modified", nil)
	if err != nil {
		return nil, err
	}
	child, err := moPayload(assoc.Relation, "", "created,modified", Attrs{assoc.RelationAttr: policy})
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(data, assoc.GroupClass+".children", append(append([]byte("["), child...), ']'))
}
