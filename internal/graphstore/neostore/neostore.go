// Package neostore runs the graphstore contract against Neo4j. Every
// transaction callback executes inside one managed driver transaction,
// so an error from the callback rolls the whole write back.
package neostore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/neo4jdb"
)

var _ graphstore.Store = (*Store)(nil)

// identRe guards label and relationship type interpolation. Both come
// from repository code, never from request payloads.
var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func New(client *neo4jdb.Client, log *logger.Logger) *Store {
	return &Store{client: client, log: log.With("store", "Neo4jGraph")}
}

// EnsureSchema creates uid uniqueness constraints for the given labels.
// Failures are logged and skipped; restricted users may not hold schema
// privileges.
func (s *Store) EnsureSchema(ctx context.Context, labels []string) {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	for _, label := range labels {
		if !identRe.MatchString(label) {
			continue
		}
		stmt := fmt.Sprintf(
			`CREATE CONSTRAINT %s_uid_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.uid IS UNIQUE`,
			label, label,
		)
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "label", label, "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *Store) Read(ctx context.Context, fn func(tx graphstore.Tx) error) error {
	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&neoTx{ctx: ctx, tx: mtx})
	})
	return err
}

func (s *Store) Write(ctx context.Context, fn func(tx graphstore.Tx) error) error {
	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&neoTx{ctx: ctx, tx: mtx})
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

type neoTx struct {
	ctx context.Context
	tx  neo4j.ManagedTransaction
}

var _ graphstore.Tx = (*neoTx)(nil)

func (t *neoTx) CreateNode(label string, props graphstore.Props) (*graphstore.Node, error) {
	if !identRe.MatchString(label) {
		return nil, fmt.Errorf("neostore: bad label %q", label)
	}
	stmt := fmt.Sprintf(`CREATE (n:%s) SET n = $props RETURN n, elementId(n) AS id`, label)
	rec, err := t.single(stmt, map[string]any{"props": dropNulls(props)})
	if err != nil {
		return nil, fmt.Errorf("neostore: create %s: %w", label, err)
	}
	return nodeFromRecord(rec, 0, label)
}

func (t *neoTx) GetNode(id string) (*graphstore.Node, error) {
	stmt := `MATCH (n) WHERE elementId(n) = $id RETURN n`
	rec, err := t.single(stmt, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neostore: get node %s: %w", id, err)
	}
	return nodeFromRecord(rec, 0, "")
}

func (t *neoTx) FindNode(label, key string, value any) (*graphstore.Node, error) {
	if !identRe.MatchString(label) {
		return nil, fmt.Errorf("neostore: bad label %q", label)
	}
	stmt := fmt.Sprintf(`MATCH (n:%s) WHERE n[$key] = $value RETURN n LIMIT 2`, label)
	res, err := t.tx.Run(t.ctx, stmt, map[string]any{"key": key, "value": value})
	if err != nil {
		return nil, fmt.Errorf("neostore: find %s by %s: %w", label, key, err)
	}
	recs, err := res.Collect(t.ctx)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, nil
	case 1:
		return nodeFromRecord(recs[0], 0, label)
	default:
		return nil, fmt.Errorf("neostore: multiple %s nodes with %s=%v", label, key, value)
	}
}

func (t *neoTx) FindNodes(label string, match graphstore.Props) ([]*graphstore.Node, error) {
	if !identRe.MatchString(label) {
		return nil, fmt.Errorf("neostore: bad label %q", label)
	}
	stmt := fmt.Sprintf(
		`MATCH (n:%s) WHERE ALL(k IN keys($match) WHERE n[k] = $match[k]) RETURN n`,
		label,
	)
	if len(match) == 0 {
		match = graphstore.Props{}
	}
	res, err := t.tx.Run(t.ctx, stmt, map[string]any{"match": map[string]any(match)})
	if err != nil {
		return nil, fmt.Errorf("neostore: find %s nodes: %w", label, err)
	}
	recs, err := res.Collect(t.ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*graphstore.Node, 0, len(recs))
	for _, rec := range recs {
		node, err := nodeFromRecord(rec, 0, label)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (t *neoTx) SetNodeProps(id string, props graphstore.Props) error {
	// Null values remove the property, matching SET += semantics.
	stmt := `MATCH (n) WHERE elementId(n) = $id SET n += $props RETURN elementId(n)`
	_, err := t.single(stmt, map[string]any{"id": id, "props": map[string]any(props)})
	if err != nil {
		return fmt.Errorf("neostore: set props on node %s: %w", id, err)
	}
	return nil
}

func (t *neoTx) DeleteNode(id string) error {
	stmt := `MATCH (n) WHERE elementId(n) = $id DETACH DELETE n`
	res, err := t.tx.Run(t.ctx, stmt, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("neostore: delete node %s: %w", id, err)
	}
	sum, err := res.Consume(t.ctx)
	if err != nil {
		return err
	}
	if sum.Counters().NodesDeleted() == 0 {
		return fmt.Errorf("neostore: no node with id %s", id)
	}
	return nil
}

func (t *neoTx) Connect(fromID, relType, toID string, props graphstore.Props) (*graphstore.Rel, error) {
	if !identRe.MatchString(relType) {
		return nil, fmt.Errorf("neostore: bad relationship type %q", relType)
	}
	stmt := fmt.Sprintf(
		`MATCH (a), (b) WHERE elementId(a) = $from AND elementId(b) = $to
		 CREATE (a)-[r:%s]->(b) SET r = $props
		 RETURN r, elementId(r), elementId(a), elementId(b)`,
		relType,
	)
	rec, err := t.single(stmt, map[string]any{
		"from":  fromID,
		"to":    toID,
		"props": dropNulls(props),
	})
	if err != nil {
		return nil, fmt.Errorf("neostore: connect %s: %w", relType, err)
	}
	return relFromRecord(rec)
}

func (t *neoTx) GetRel(id string) (*graphstore.Rel, error) {
	stmt := `MATCH (a)-[r]->(b) WHERE elementId(r) = $id
	         RETURN r, elementId(r), elementId(a), elementId(b)`
	rec, err := t.single(stmt, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neostore: get relationship %s: %w", id, err)
	}
	return relFromRecord(rec)
}

func (t *neoTx) SetRelProps(id string, props graphstore.Props) error {
	stmt := `MATCH ()-[r]->() WHERE elementId(r) = $id SET r += $props RETURN elementId(r)`
	_, err := t.single(stmt, map[string]any{"id": id, "props": map[string]any(props)})
	if err != nil {
		return fmt.Errorf("neostore: set props on relationship %s: %w", id, err)
	}
	return nil
}

func (t *neoTx) Disconnect(id string) error {
	stmt := `MATCH ()-[r]->() WHERE elementId(r) = $id DELETE r`
	res, err := t.tx.Run(t.ctx, stmt, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("neostore: disconnect %s: %w", id, err)
	}
	sum, err := res.Consume(t.ctx)
	if err != nil {
		return err
	}
	if sum.Counters().RelationshipsDeleted() == 0 {
		return fmt.Errorf("neostore: no relationship with id %s", id)
	}
	return nil
}

func (t *neoTx) OutRels(nodeID, relType string) ([]*graphstore.Rel, error) {
	return t.rels(`MATCH (a)-[r%s]->(b) WHERE elementId(a) = $id
	               RETURN r, elementId(r), elementId(a), elementId(b)`, nodeID, relType)
}

func (t *neoTx) InRels(nodeID, relType string) ([]*graphstore.Rel, error) {
	return t.rels(`MATCH (a)-[r%s]->(b) WHERE elementId(b) = $id
	               RETURN r, elementId(r), elementId(a), elementId(b)`, nodeID, relType)
}

func (t *neoTx) NextCounter(name string) (int64, error) {
	stmt := `MERGE (c:Counter {name: $name})
	         ON CREATE SET c.count = 1
	         ON MATCH SET c.count = c.count + 1
	         RETURN c.count AS count`
	rec, err := t.single(stmt, map[string]any{"name": name})
	if err != nil {
		return 0, fmt.Errorf("neostore: counter %s: %w", name, err)
	}
	count, ok := rec.Values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("neostore: counter %s returned %T", name, rec.Values[0])
	}
	return count, nil
}

func (t *neoTx) rels(stmtTemplate, nodeID, relType string) ([]*graphstore.Rel, error) {
	typePart := ""
	if relType != "" {
		if !identRe.MatchString(relType) {
			return nil, fmt.Errorf("neostore: bad relationship type %q", relType)
		}
		typePart = ":" + relType
	}
	stmt := fmt.Sprintf(stmtTemplate, typePart)
	res, err := t.tx.Run(t.ctx, stmt, map[string]any{"id": nodeID})
	if err != nil {
		return nil, fmt.Errorf("neostore: list relationships of %s: %w", nodeID, err)
	}
	recs, err := res.Collect(t.ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*graphstore.Rel, 0, len(recs))
	for _, rec := range recs {
		rel, err := relFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

func (t *neoTx) single(stmt string, params map[string]any) (*neo4j.Record, error) {
	res, err := t.tx.Run(t.ctx, stmt, params)
	if err != nil {
		return nil, err
	}
	return res.Single(t.ctx)
}

func nodeFromRecord(rec *neo4j.Record, idx int, label string) (*graphstore.Node, error) {
	raw, ok := rec.Values[idx].(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("neostore: expected node, got %T", rec.Values[idx])
	}
	if label == "" && len(raw.Labels) > 0 {
		label = primaryLabel(raw.Labels)
	}
	return &graphstore.Node{
		ID:    raw.ElementId,
		Label: label,
		Props: graphstore.Props(raw.Props),
	}, nil
}

func relFromRecord(rec *neo4j.Record) (*graphstore.Rel, error) {
	raw, ok := rec.Values[0].(neo4j.Relationship)
	if !ok {
		return nil, fmt.Errorf("neostore: expected relationship, got %T", rec.Values[0])
	}
	relID, _ := rec.Values[1].(string)
	fromID, _ := rec.Values[2].(string)
	toID, _ := rec.Values[3].(string)
	return &graphstore.Rel{
		ID:     relID,
		Type:   raw.Type,
		FromID: fromID,
		ToID:   toID,
		Props:  graphstore.Props(raw.Props),
	}, nil
}

// primaryLabel skips bookkeeping labels so callers see the entity label.
func primaryLabel(labels []string) string {
	for _, l := range labels {
		if l != "Counter" {
			return l
		}
	}
	return labels[0]
}

func dropNulls(props graphstore.Props) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
