// Package docstore is the gateway to the document store. Filters and updates
// are expressed as bson documents and passed through to the backend; every
// call reports a status-tagged Result instead of returning an error so that
// callers can log and continue without aborting sibling work.
package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// InvalidArgumentsMessage is the message carried by results rejected before
// reaching the store.
const InvalidArgumentsMessage = "Invalid arguments."

// Result is the outcome of a gateway call.
type Result struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Results []bson.M `json:"results,omitempty"`
	Values  []any    `json:"values,omitempty"`
	Number  int64    `json:"number,omitempty"`
	ID      any      `json:"_id,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Err converts a non-ok result into an error.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	if r.Message == "" {
		return errors.New("document store error")
	}
	return errors.New(r.Message)
}

func okResult() Result {
	return Result{Status: StatusOK}
}

// ErrorResult builds a non-ok result carrying message.
func ErrorResult(message string) Result {
	return Result{Status: StatusError, Message: message}
}

// InvalidArguments is the result returned for rejected input.
func InvalidArguments() Result {
	return ErrorResult(InvalidArgumentsMessage)
}

// FindOptions controls sorting, projection and paging of Find.
// A positive Cap bounds Limit; a non-positive Limit with a Cap yields Cap rows.
type FindOptions struct {
	Sort       bson.D
	Projection bson.M
	Offset     int
	Limit      int
	Cap        int
}

func (o FindOptions) effectiveLimit() int {
	limit := o.Limit
	if o.Cap > 0 && (limit <= 0 || limit > o.Cap) {
		limit = o.Cap
	}
	if limit < 0 {
		return 0
	}
	return limit
}

// Gateway executes operations against named collections.
type Gateway interface {
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) Result
	Save(ctx context.Context, collection string, doc bson.M) Result
	Update(ctx context.Context, collection string, filter, update bson.M, multi bool) Result
	Delete(ctx context.Context, collection string, filter bson.M) Result
	Distinct(ctx context.Context, collection, field string, filter bson.M) Result
}
