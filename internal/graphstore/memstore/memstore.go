// Package memstore is the in-memory graphstore used for tests and
// ephemeral environments. Write transactions clone the whole state,
// mutate the clone, and swap it in on success, so a failed callback
// leaves the store untouched.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
)

var _ graphstore.Store = (*Store)(nil)

type nodeRec struct {
	id    string
	label string
	props graphstore.Props
	seq   int64
}

type relRec struct {
	id    string
	typ   string
	from  string
	to    string
	props graphstore.Props
	seq   int64
}

type state struct {
	nodes    map[string]*nodeRec
	rels     map[string]*relRec
	counters map[string]int64
	seq      int64
}

func newState() *state {
	return &state{
		nodes:    make(map[string]*nodeRec),
		rels:     make(map[string]*relRec),
		counters: make(map[string]int64),
	}
}

func (s *state) clone() *state {
	out := &state{
		nodes:    make(map[string]*nodeRec, len(s.nodes)),
		rels:     make(map[string]*relRec, len(s.rels)),
		counters: make(map[string]int64, len(s.counters)),
		seq:      s.seq,
	}
	for id, n := range s.nodes {
		out.nodes[id] = &nodeRec{id: n.id, label: n.label, props: n.props.Clone(), seq: n.seq}
	}
	for id, r := range s.rels {
		out.rels[id] = &relRec{id: r.id, typ: r.typ, from: r.from, to: r.to, props: r.props.Clone(), seq: r.seq}
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	return out
}

type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) Read(ctx context.Context, fn func(tx graphstore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{state: s.state, writable: false})
}

func (s *Store) Write(ctx context.Context, fn func(tx graphstore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work, writable: true}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

type memTx struct {
	state    *state
	writable bool
}

var _ graphstore.Tx = (*memTx)(nil)

func (tx *memTx) CreateNode(label string, props graphstore.Props) (*graphstore.Node, error) {
	if !tx.writable {
		return nil, fmt.Errorf("memstore: create node in read-only transaction")
	}
	if label == "" {
		return nil, fmt.Errorf("memstore: node label required")
	}
	props = normalizeProps(props)
	if uid := props.String("uid"); uid != "" {
		if err := tx.checkUIDFree(label, uid, ""); err != nil {
			return nil, err
		}
	}
	tx.state.seq++
	rec := &nodeRec{
		id:    uuid.NewString(),
		label: label,
		props: props,
		seq:   tx.state.seq,
	}
	tx.state.nodes[rec.id] = rec
	return rec.toNode(), nil
}

func (tx *memTx) GetNode(id string) (*graphstore.Node, error) {
	rec, ok := tx.state.nodes[id]
	if !ok {
		return nil, fmt.Errorf("memstore: no node with id %s", id)
	}
	return rec.toNode(), nil
}

func (tx *memTx) FindNode(label, key string, value any) (*graphstore.Node, error) {
	value = normalizeValue(value)
	var found *nodeRec
	for _, rec := range tx.state.nodes {
		if rec.label != label {
			continue
		}
		if !valueEqual(rec.props[key], value) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("memstore: multiple %s nodes with %s=%v", label, key, value)
		}
		found = rec
	}
	if found == nil {
		return nil, nil
	}
	return found.toNode(), nil
}

func (tx *memTx) FindNodes(label string, match graphstore.Props) ([]*graphstore.Node, error) {
	match = normalizeProps(match)
	recs := make([]*nodeRec, 0)
	for _, rec := range tx.state.nodes {
		if rec.label != label {
			continue
		}
		ok := true
		for k, v := range match {
			if !valueEqual(rec.props[k], v) {
				ok = false
				break
			}
		}
		if ok {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]*graphstore.Node, len(recs))
	for i, rec := range recs {
		out[i] = rec.toNode()
	}
	return out, nil
}

func (tx *memTx) SetNodeProps(id string, props graphstore.Props) error {
	if !tx.writable {
		return fmt.Errorf("memstore: set node props in read-only transaction")
	}
	rec, ok := tx.state.nodes[id]
	if !ok {
		return fmt.Errorf("memstore: no node with id %s", id)
	}
	props = normalizeProps(props)
	if uid := props.String("uid"); uid != "" && uid != rec.props.String("uid") {
		if err := tx.checkUIDFree(rec.label, uid, id); err != nil {
			return err
		}
	}
	for k, v := range props {
		if v == nil {
			delete(rec.props, k)
			continue
		}
		rec.props[k] = v
	}
	return nil
}

func (tx *memTx) DeleteNode(id string) error {
	if !tx.writable {
		return fmt.Errorf("memstore: delete node in read-only transaction")
	}
	if _, ok := tx.state.nodes[id]; !ok {
		return fmt.Errorf("memstore: no node with id %s", id)
	}
	delete(tx.state.nodes, id)
	for relID, rel := range tx.state.rels {
		if rel.from == id || rel.to == id {
			delete(tx.state.rels, relID)
		}
	}
	return nil
}

func (tx *memTx) Connect(fromID, relType, toID string, props graphstore.Props) (*graphstore.Rel, error) {
	if !tx.writable {
		return nil, fmt.Errorf("memstore: connect in read-only transaction")
	}
	if relType == "" {
		return nil, fmt.Errorf("memstore: relationship type required")
	}
	if _, ok := tx.state.nodes[fromID]; !ok {
		return nil, fmt.Errorf("memstore: connect from unknown node %s", fromID)
	}
	if _, ok := tx.state.nodes[toID]; !ok {
		return nil, fmt.Errorf("memstore: connect to unknown node %s", toID)
	}
	tx.state.seq++
	rec := &relRec{
		id:    uuid.NewString(),
		typ:   relType,
		from:  fromID,
		to:    toID,
		props: normalizeProps(props),
		seq:   tx.state.seq,
	}
	tx.state.rels[rec.id] = rec
	return rec.toRel(), nil
}

func (tx *memTx) GetRel(id string) (*graphstore.Rel, error) {
	rec, ok := tx.state.rels[id]
	if !ok {
		return nil, fmt.Errorf("memstore: no relationship with id %s", id)
	}
	return rec.toRel(), nil
}

func (tx *memTx) SetRelProps(id string, props graphstore.Props) error {
	if !tx.writable {
		return fmt.Errorf("memstore: set rel props in read-only transaction")
	}
	rec, ok := tx.state.rels[id]
	if !ok {
		return fmt.Errorf("memstore: no relationship with id %s", id)
	}
	for k, v := range normalizeProps(props) {
		if v == nil {
			delete(rec.props, k)
			continue
		}
		rec.props[k] = v
	}
	return nil
}

func (tx *memTx) Disconnect(id string) error {
	if !tx.writable {
		return fmt.Errorf("memstore: disconnect in read-only transaction")
	}
	if _, ok := tx.state.rels[id]; !ok {
		return fmt.Errorf("memstore: no relationship with id %s", id)
	}
	delete(tx.state.rels, id)
	return nil
}

func (tx *memTx) OutRels(nodeID, relType string) ([]*graphstore.Rel, error) {
	return tx.relsWhere(func(r *relRec) bool {
		return r.from == nodeID && (relType == "" || r.typ == relType)
	})
}

func (tx *memTx) InRels(nodeID, relType string) ([]*graphstore.Rel, error) {
	return tx.relsWhere(func(r *relRec) bool {
		return r.to == nodeID && (relType == "" || r.typ == relType)
	})
}

func (tx *memTx) NextCounter(name string) (int64, error) {
	if !tx.writable {
		return 0, fmt.Errorf("memstore: counter increment in read-only transaction")
	}
	tx.state.counters[name]++
	return tx.state.counters[name], nil
}

func (tx *memTx) relsWhere(keep func(*relRec) bool) ([]*graphstore.Rel, error) {
	recs := make([]*relRec, 0)
	for _, rec := range tx.state.rels {
		if keep(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	out := make([]*graphstore.Rel, len(recs))
	for i, rec := range recs {
		out[i] = rec.toRel()
	}
	return out, nil
}

func (tx *memTx) checkUIDFree(label, uid, selfID string) error {
	for id, rec := range tx.state.nodes {
		if id == selfID {
			continue
		}
		if rec.label == label && rec.props.String("uid") == uid {
			return fmt.Errorf("memstore: %s with uid %s already exists", label, uid)
		}
	}
	return nil
}

func (n *nodeRec) toNode() *graphstore.Node {
	return &graphstore.Node{ID: n.id, Label: n.label, Props: n.props.Clone()}
}

func (r *relRec) toRel() *graphstore.Rel {
	return &graphstore.Rel{ID: r.id, Type: r.typ, FromID: r.from, ToID: r.to, Props: r.props.Clone()}
}

// normalizeProps widens integer kinds and drops nil entries so equality
// behaves the same as the Neo4j backend.
func normalizeProps(props graphstore.Props) graphstore.Props {
	out := make(graphstore.Props, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC()
	}
	return v
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if as, ok := a.([]string); ok {
		bs, ok := b.([]string)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
