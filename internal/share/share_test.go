package share

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestFromDoc(t *testing.T) {
	cases := []struct {
		name    string
		doc     map[string]any
		wantErr bool
		can     Action
		allow   bool
	}{
		{name: "group grant", doc: map[string]any{"groupId": "g1", string(ActionGetDocument): true}, can: ActionGetDocument, allow: true},
		{name: "user grant without flag", doc: map[string]any{"userId": "u1"}, can: ActionCopyDocuments, allow: false},
		{name: "false flag", doc: map[string]any{"userId": "u1", string(ActionCopyDocuments): false}, can: ActionCopyDocuments, allow: false},
		{name: "both references", doc: map[string]any{"userId": "u1", "groupId": "g1"}, wantErr: true},
		{name: "no reference", doc: map[string]any{string(ActionGetDocument): true}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := FromDoc(tc.doc)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidGrant)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.allow, g.Can(tc.can))
		})
	}
}

func TestDocOrdering(t *testing.T) {
	g := ForGroup("g1", ActionGetDocument, ActionCopyDocuments)
	assert.Equal(t, bson.D{
		{Key: "groupId", Value: "g1"},
		{Key: string(ActionCopyDocuments), Value: true},
		{Key: string(ActionGetDocument), Value: true},
	}, g.Doc())
}

func TestMemberGrantsPreserveFlags(t *testing.T) {
	group := ForGroup("g1", ActionGetDocument)
	grants := MemberGrants(group, []string{"u1", "", "u2", "u1"})

	require.Len(t, grants, 2)
	for i, want := range []string{"u1", "u2"} {
		assert.Equal(t, want, grants[i].UserID)
		assert.Empty(t, grants[i].GroupID)
		assert.True(t, grants[i].Can(ActionGetDocument))
		assert.False(t, grants[i].Can(ActionCopyDocuments))
		assert.NoError(t, grants[i].Validate())
	}

	grants[0].Actions[ActionCopyDocuments] = true
	assert.False(t, group.Can(ActionCopyDocuments))
	assert.Len(t, Docs(grants), 2)
}
