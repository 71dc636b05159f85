package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var leafNodeGroups = &AssociationSpec{
	GroupClass:   "fabricLeNodePGrp",
	Relation:     "fabricRsNodeCtrl",
	RelationAttr: "tnFabricNodeControlName",
	Description:  "leaf switch policy groups",
}

var accessPortGroups = &AssociationSpec{
	GroupClass:   "infraAccPortGrp",
	Relation:     "infraRsMcpIfPol",
	RelationAttr: "tnMcpIfPolName",
	Description:  "leaf access port policy groups",
}

func builtinPolicies() []PolicySpec {
	return []PolicySpec{
		{
			Name:        "diagnostics",
			Description: "digital optical monitoring node control policy",
			Action:      "create the DOM node control policy",
			Class:       "fabricNodeControl",
			DN:          "uni/fabric/nodecontrol-{name}",
			DefaultName: "default-dom",
			Satisfied:   attrEquals("control", "Dom", "1"),
			CreateAttrs: Attrs{"control": "Dom", "descr": "Enable DOM"},
			PatchAttrs:  Attrs{"control": "Dom"},
			Association: leafNodeGroups,
		},
		{
			Name:        "endpoint-learning",
			Description: "disable remote endpoint learning",
			Action:      "disable remote EP learning",
			Class:       "infraSetPol",
			DN:          "uni/infra/settings",
			Singleton:   true,
			Satisfied: anyOf(
				attrEquals("remoteEpLearn", "disabled"),
				attrEquals("unicastXrEpLearnDisable", "yes"),
			),
			PatchAttrs: Attrs{"unicastXrEpLearnDisable": "yes"},
		},
		{
			Name:        "loop-protection",
			Description: "MCP instance policy default",
			Action:      "enable the MCP instance policy 'default'",
			Class:       "mcpInstPol",
			DN:          "uni/infra/mcpInstP-default",
			Singleton:   true,
			Satisfied:   attrEquals("adminSt", "enabled"),
			PatchAttrs:  Attrs{"adminSt": "enabled", "name": "default"},
		},
		{
			Name:        "loop-protection-interface",
			Description: "MCP interface policy",
			Action:      "enable the MCP interface policy",
			Class:       "mcpIfPol",
			DN:          "uni/infra/mcpIfP-{name}",
			DefaultName: "mcp-enabled",
			Satisfied:   attrEquals("adminSt", "enabled"),
			CreateAttrs: Attrs{"adminSt": "enabled", "descr": "MCP Interface Policy"},
			PatchAttrs:  Attrs{"adminSt": "enabled"},
			Association: accessPortGroups,
		},
		{
			Name:        "port-tracking",
			Description: "port tracking",
			Action:      "enable port tracking",
			Class:       "infraPortTrackPol",
			DN:          "uni/infra/trackEqptFabP-default",
			Singleton:   true,
			Satisfied: anyOf(
				attrEquals("adminSt", "on"),
				attrEquals("portTracking", "enabled"),
			),
			PatchAttrs: Attrs{"adminSt": "on"},
		},
		{
			Name:        "rogue-endpoint-control",
			Description: "rogue endpoint control",
			Action:      "enable rogue EP control",
			Class:       "epControlP",
			DN:          "uni/infra/epCtrlP-default",
			Singleton:   true,
			Satisfied:   attrEquals("adminSt", "enabled"),
			PatchAttrs: Attrs{
				"adminSt":            "enabled",
				"holdIntvl":          "1800",
				"rogueEpDetectIntvl": "60",
				"rogueEpDetectMult":  "4",
			},
		},
	}
}

// Catalog indexes policies by case-insensitive name.
type Catalog struct {
	specs map[string]PolicySpec
}

func newCatalog(specs ...PolicySpec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]PolicySpec)}
	for _, spec := range specs {
		if err := c.add(spec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// add registers spec, replacing any policy of the same name.
func (c *Catalog) add(spec PolicySpec) error {
	if err := spec.validate(); err != nil {
		return err
	}
	c.specs[strings.ToLower(spec.Name)] = spec
	return nil
}

func (c *Catalog) lookup(names []string) ([]PolicySpec, error) {
	var specs []PolicySpec
	for _, name := range names {
		spec, ok := c.specs[strings.ToLower(name)]
		if !ok {
			return nil, errors.Errorf("unknown policy %q (use --list)", name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (c *Catalog) all() []PolicySpec {
	specs := make([]PolicySpec, 0, len(c.specs))
	for _, spec := range c.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

func (c *Catalog) print(w io.Writer) {
	for _, spec := range c.all() {
		scope := "fabric-wide"
		if !spec.Singleton {
			scope = "named"
			if spec.DefaultName != "" {
				scope = fmt.Sprintf("named, default %q", spec.DefaultName)
			}
		}
		fmt.Fprintf(w, "%-28s %s (%s, %s)\n", spec.Name, spec.Description, spec.Class, scope)
		if spec.Association != nil {
			fmt.Fprintf(w, "%-28s   attaches to %s\n", "", spec.Association.Description)
		}
	}
}

type policyFile struct {
	Policies []policyDef `yaml:"policies"`
}

type policyDef struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Action      string              `yaml:"action"`
	Class       string              `yaml:"class"`
	DN          string              `yaml:"dn"`
	WriteDN     string              `yaml:"write_dn"`
	DefaultName string              `yaml:"default_name"`
	Match       map[string][]string `yaml:"match"`
	Create      map[string]string   `yaml:"create"`
	Patch       map[string]string   `yaml:"patch"`
	Association *associationDef     `yaml:"association"`
}

type associationDef struct {
	GroupClass   string `yaml:"group_class"`
	Relation     string `yaml:"relation"`
	RelationAttr string `yaml:"relation_attribute"`
	Description  string `yaml:"description"`
}

func (d policyDef) spec() (PolicySpec, error) {
	if len(d.Match) == 0 {
		return PolicySpec{}, errors.Errorf("policy %s: match is required", d.Name)
	}
	var preds []Predicate
	for _, key := range sortedKeys(attrsOf(d.Match)) {
		preds = append(preds, attrEquals(key, d.Match[key]...))
	}
	spec := PolicySpec{
		Name:        d.Name,
		Description: d.Description,
		Action:      d.Action,
		Class:       d.Class,
		DN:          d.DN,
		WriteDN:     d.WriteDN,
		DefaultName: d.DefaultName,
		Singleton:   !strings.Contains(d.DN, nameToken),
		Satisfied:   allOf(preds...),
		CreateAttrs: Attrs(d.Create),
		PatchAttrs:  Attrs(d.Patch),
	}
	if spec.Action == "" {
		spec.Action = "apply " + d.Name
	}
	if d.Association != nil {
		spec.Association = &AssociationSpec{
			GroupClass:   d.Association.GroupClass,
			Relation:     d.Association.Relation,
			RelationAttr: d.Association.RelationAttr,
			Description:  d.Association.Description,
		}
		if spec.Association.Description == "" {
			spec.Association.Description = d.Association.GroupClass + " groups"
		}
	}
	return spec, spec.validate()
}

func attrsOf(match map[string][]string) Attrs {
	attrs := Attrs{}
	for k := range match {
		attrs[k] = ""
	}
	return attrs
}

// parsePolicies decodes a YAML policy catalog.
func parsePolicies(data []byte) ([]PolicySpec, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "parsing policy file")
	}
	specs := make([]PolicySpec, 0, len(file.Policies))
	for _, def := range file.Policies {
		spec, err := def.spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func loadPolicies(path string) ([]PolicySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading policy file")
	}
	return parsePolicies(data)
}
