package main

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sirupsen/logrus"
)

// GroupRef is a group a policy can be attached to. Bound is the policy
// name the group's relation currently points at, if any.
type GroupRef struct {
	Name  string `json:"name"`
	DN    string `json:"dn"`
	Bound string `json:"bound,omitempty"`
}

// AssociationStatus is the result of attaching a policy to one group.
type AssociationStatus int

const (
	Associated AssociationStatus = iota + 1
	AlreadyAssociated
	AssociationFailed
)

func (s AssociationStatus) String() string {
	switch s {
	case Associated:
		return "associated"
	case AlreadyAssociated:
		return "already-associated"
	case AssociationFailed:
		return "failed"
	}
	return "unknown"
}

func (s AssociationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// AssociationOutcome is independent of its siblings.
type AssociationOutcome struct {
	Group  GroupRef
	Status AssociationStatus
	Err    error
}

// listGroups enumerates the candidate groups with their current relation
// in a single class query. Results are sorted by name so numbering is
// stable between prompts.
func listGroups(ctx context.Context, s apiSession, assoc *AssociationSpec) ([]GroupRef, error) {
	res, err := getOnce(ctx, s, "/api/class/"+assoc.GroupClass,
		queryParam("rsp-subtree", "children"),
		queryParam("rsp-subtree-class", assoc.Relation))
	if err != nil {
		return nil, readError(assoc.GroupClass, err)
	}
	var groups []GroupRef
	for _, record := range res.Get("#." + assoc.GroupClass).Array() {
		group := GroupRef{
			Name: record.Get("attributes.name").Str,
			DN:   record.Get("attributes.dn").Str,
		}
		if group.Name == "" || group.DN == "" {
			continue
		}
		bound := record.Get("children.#." + assoc.Relation + ".attributes." + assoc.RelationAttr).Array()
		if len(bound) > 0 {
			group.Bound = bound[0].Str
		}
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// selectGroups maps 1-based picks onto groups. Out of range and repeated
// picks are dropped; pick order is kept.
func selectGroups(groups []GroupRef, picks []int) []GroupRef {
	seen := make(map[int]bool)
	var selected []GroupRef
	for _, pick := range picks {
		if pick < 1 || pick > len(groups) || seen[pick] {
			continue
		}
		seen[pick] = true
		selected = append(selected, groups[pick-1])
	}
	return selected
}

// associate attaches policy to each group in order. A failed group never
// stops the remaining ones and nothing is rolled back.
func associate(ctx context.Context, s apiSession, assoc *AssociationSpec, policy string, groups []GroupRef) []AssociationOutcome {
	outcomes := make([]AssociationOutcome, 0, len(groups))
	for _, group := range groups {
		logger := log.WithFields(logrus.Fields{
			"controller": s.Address(),
			"policy":     policy,
			"group":      group.Name,
		})
		if group.Bound == policy {
			logger.Info("Group already references the policy.")
			outcomes = append(outcomes, AssociationOutcome{Group: group, Status: AlreadyAssociated})
			continue
		}
		payload, err := associationPayload(assoc, group, policy)
		if err == nil {
			_, err = s.Post(ctx, "/api/mo/"+group.DN, payload)
		}
		if err != nil {
			logger.WithError(err).Error("Association failed")
			outcomes = append(outcomes, AssociationOutcome{
				Group:  group,
				Status: AssociationFailed,
				Err:    associationError(group.Name, err),
			})
			continue
		}
		logger.Info("Policy associated.")
		outcomes = append(outcomes, AssociationOutcome{Group: group, Status: Associated})
	}
	return outcomes
}
