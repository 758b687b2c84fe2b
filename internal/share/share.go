// Package share models the grants attached to shared content.
package share

import (
	"errors"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Action string

const (
	ActionGetDocument   Action = "org-entcore-workspace-service-WorkspaceService|getDocument"
	ActionCopyDocuments Action = "org-entcore-workspace-service-WorkspaceService|copyDocuments"
)

// DefaultMemberActions are granted to former group members when the group
// grant itself cannot be read.
var DefaultMemberActions = []Action{ActionGetDocument, ActionCopyDocuments}

const (
	FieldUserID  = "userId"
	FieldGroupID = "groupId"
)

var ErrInvalidGrant = errors.New("share: grant must reference exactly one of userId or groupId")

// Grant gives a user or a group a set of actions on one item.
type Grant struct {
	UserID  string
	GroupID string
	Actions map[Action]bool
}

func ForUser(userID string, actions ...Action) Grant {
	g := Grant{UserID: userID, Actions: map[Action]bool{}}
	for _, a := range actions {
		g.Actions[a] = true
	}
	return g
}

func ForGroup(groupID string, actions ...Action) Grant {
	g := ForUser("", actions...)
	g.GroupID = groupID
	return g
}

// FromDoc reads a grant from its stored form. Every key other than the
// reference is a capability flag; only boolean flags are kept.
func FromDoc(doc map[string]any) (Grant, error) {
	g := Grant{Actions: map[Action]bool{}}
	for k, v := range doc {
		switch k {
		case FieldUserID:
			g.UserID, _ = v.(string)
		case FieldGroupID:
			g.GroupID, _ = v.(string)
		default:
			if b, ok := v.(bool); ok {
				g.Actions[Action(k)] = b
			}
		}
	}
	if err := g.Validate(); err != nil {
		return Grant{}, err
	}
	return g, nil
}

func (g Grant) Validate() error {
	if (g.UserID == "") == (g.GroupID == "") {
		return ErrInvalidGrant
	}
	return nil
}

func (g Grant) Can(a Action) bool {
	return g.Actions[a]
}

// Doc renders the grant with the reference first and flags in key order.
func (g Grant) Doc() bson.D {
	d := bson.D{}
	if g.UserID != "" {
		d = append(d, bson.E{Key: FieldUserID, Value: g.UserID})
	} else {
		d = append(d, bson.E{Key: FieldGroupID, Value: g.GroupID})
	}
	keys := make([]string, 0, len(g.Actions))
	for a := range g.Actions {
		keys = append(keys, string(a))
	}
	sort.Strings(keys)
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: g.Actions[Action(k)]})
	}
	return d
}

// ForMember copies the group's flags onto a per-user grant.
func (g Grant) ForMember(userID string) Grant {
	out := Grant{UserID: userID, Actions: make(map[Action]bool, len(g.Actions))}
	for a, v := range g.Actions {
		out.Actions[a] = v
	}
	return out
}

// MemberGrants builds one grant per member carrying the flags of group.
// Blank and repeated member ids are skipped.
func MemberGrants(group Grant, members []string) []Grant {
	seen := map[string]bool{}
	out := make([]Grant, 0, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, group.ForMember(m))
	}
	return out
}

// Docs renders grants for an $each clause.
func Docs(grants []Grant) bson.A {
	out := make(bson.A, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.Doc())
	}
	return out
}
