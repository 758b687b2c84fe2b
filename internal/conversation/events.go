// Package conversation applies lifecycle events to the message graph.
// Messages are never deleted because a participant went away; the
// participant's display name is frozen into fromName, toName and ccName.
package conversation

import (
	"context"

	"github.com/dgu123/entcore/internal/async"
	"github.com/dgu123/entcore/internal/graph"
	"github.com/dgu123/entcore/internal/lifecycle"
	"github.com/rs/zerolog"
)

const Module = "conversation"

const (
	freezeFromName = `MATCH (m:ConversationMessage {from: $id}) SET m.fromName = $displayName`
	freezeToName   = `MATCH (m:ConversationMessage) WHERE $id IN m.to
SET m.toName = coalesce(m.toName, []) + $displayName`
	freezeCcName = `MATCH (m:ConversationMessage) WHERE $id IN m.cc
SET m.ccName = coalesce(m.ccName, []) + $displayName`

	deleteContainers = `MATCH (c:Conversation) WHERE c.userId IN $userIds
OPTIONAL MATCH (c)-[:HAS_CONVERSATION_FOLDER]->(f:ConversationFolder)
DETACH DELETE f, c`

	deleteOrphanMessages = `MATCH (m:ConversationMessage)
WHERE NOT (m)<-[:HAS_CONVERSATION_MESSAGE|HAD_CONVERSATION_MESSAGE]-()
  AND NOT EXISTS {
    MATCH (m)-[:PARENT_CONVERSATION_MESSAGE]-(p:ConversationMessage)
    WHERE (p)<-[:HAS_CONVERSATION_MESSAGE|HAD_CONVERSATION_MESSAGE]-()
  }
DETACH DELETE m`
)

// RepositoryEvents is the conversation lifecycle.Handler.
type RepositoryEvents struct {
	graph graph.Executor
	log   zerolog.Logger
}

var _ lifecycle.Handler = (*RepositoryEvents)(nil)

func NewRepositoryEvents(exec graph.Executor, log zerolog.Logger) *RepositoryEvents {
	return &RepositoryEvents{graph: exec, log: log.With().Str("module", Module).Logger()}
}

// ExportResources has nothing to write: messages are not part of exports.
func (r *RepositoryEvents) ExportResources(context.Context, lifecycle.ExportRequest) *async.Future[bool] {
	return async.Resolved(true)
}

// DeleteGroups freezes every group name in one transaction.
func (r *RepositoryEvents) DeleteGroups(ctx context.Context, groups []lifecycle.Group) *async.Future[lifecycle.Report] {
	failed := lifecycle.Report{Module: Module, Operation: "deleteGroups", Failed: len(groups)}
	return lifecycle.Run(r.log, "deleteGroups", failed, func() lifecycle.Report {
		b := graph.NewBatch()
		n := 0
		for _, g := range groups {
			if g.ID == "" {
				continue
			}
			freezeName(b, g.ID, g.DisplayName)
			n++
		}
		return r.execute(ctx, "deleteGroups", b, n)
	})
}

// DeleteUsers removes the users' message containers, then the messages no
// one holds anymore, then freezes the users' names on what remains.
func (r *RepositoryEvents) DeleteUsers(ctx context.Context, users []lifecycle.User) *async.Future[lifecycle.Report] {
	failed := lifecycle.Report{Module: Module, Operation: "deleteUsers", Failed: len(users)}
	return lifecycle.Run(r.log, "deleteUsers", failed, func() lifecycle.Report {
		ids := lifecycle.UserIDs(users)
		if len(ids) == 0 {
			return lifecycle.Report{Module: Module, Operation: "deleteUsers"}
		}
		b := graph.NewBatch().
			Add(deleteContainers, map[string]any{"userIds": ids}).
			Add(deleteOrphanMessages, nil)
		for _, u := range users {
			if u.ID != "" {
				freezeName(b, u.ID, u.DisplayName)
			}
		}
		return r.execute(ctx, "deleteUsers", b, len(ids))
	})
}

func freezeName(b *graph.Batch, id, displayName string) {
	params := map[string]any{"id": id, "displayName": displayName}
	b.Add(freezeFromName, params).
		Add(freezeToName, params).
		Add(freezeCcName, params)
}

func (r *RepositoryEvents) execute(ctx context.Context, op string, b *graph.Batch, items int) lifecycle.Report {
	report := lifecycle.Report{Module: Module, Operation: op}
	if b.Len() == 0 {
		return report
	}
	sum, err := r.graph.ExecuteTransaction(ctx, b.Statements())
	if err != nil {
		r.log.Error().Err(err).Str("op", op).Int("statements", b.Len()).Msg("conversation cascade failed")
		report.Failed = items
		return report
	}
	r.log.Info().Str("op", op).Int("nodesDeleted", sum.NodesDeleted).Int("propertiesSet", sum.PropertiesSet).
		Msg("conversation cascade applied")
	report.Succeeded = items
	return report
}
