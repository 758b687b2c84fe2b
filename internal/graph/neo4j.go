package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// Neo4j runs batches as managed write transactions, retried by the driver
// on transient failures.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
	log      zerolog.Logger
}

// OpenNeo4j connects to uri and verifies connectivity.
func OpenNeo4j(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return driver, nil
}

func NewNeo4j(driver neo4j.DriverWithContext, database string, log zerolog.Logger) *Neo4j {
	return &Neo4j{driver: driver, database: database, log: log.With().Str("component", "graph").Logger()}
}

func (n *Neo4j) ExecuteTransaction(ctx context.Context, statements []Statement) (Summary, error) {
	if len(statements) == 0 {
		return Summary{}, ErrEmptyBatch
	}
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		sum := Summary{}
		for i, st := range statements {
			res, err := tx.Run(ctx, st.Query, st.Params)
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
			rs, err := res.Consume(ctx)
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
			c := rs.Counters()
			sum.Statements++
			sum.NodesDeleted += c.NodesDeleted()
			sum.RelationshipsDeleted += c.RelationshipsDeleted()
			sum.PropertiesSet += c.PropertiesSet()
		}
		return sum, nil
	})
	if err != nil {
		n.log.Error().Err(err).Int("statements", len(statements)).Msg("graph transaction failed")
		return Summary{}, fmt.Errorf("execute transaction: %w", err)
	}
	return out.(Summary), nil
}
