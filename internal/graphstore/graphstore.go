// Package graphstore defines the property-graph contract the repository
// layer is written against. Two implementations exist: neostore runs
// every primitive as Cypher inside a managed Neo4j transaction, and
// memstore keeps the whole graph in process memory with copy-on-write
// transactions for tests and local runs.
package graphstore

import (
	"context"
	"fmt"
	"time"
)

// Props holds node or relationship properties. Values are restricted to
// what both backends can store: string, int64, float64, bool, time.Time,
// []string and nil.
type Props map[string]any

// Node is a graph node. ID is the backend's element id and is never
// exposed outside the data layer; callers identify nodes by uid props.
type Node struct {
	ID    string
	Label string
	Props Props
}

// Rel is a directed relationship between two nodes.
type Rel struct {
	ID     string
	Type   string
	FromID string
	ToID   string
	Props  Props
}

// Tx is the primitive set available inside one transaction. Write
// callbacks get the full set; read callbacks must not call mutating
// primitives (memstore rejects them, Neo4j read sessions fail).
type Tx interface {
	CreateNode(label string, props Props) (*Node, error)
	GetNode(id string) (*Node, error)
	// FindNode returns the single node whose property key equals value,
	// or (nil, nil) when absent. Multiple matches are a store error.
	FindNode(label, key string, value any) (*Node, error)
	// FindNodes returns all nodes of the label whose props contain every
	// entry of match. A nil match returns all nodes of the label.
	FindNodes(label string, match Props) ([]*Node, error)
	SetNodeProps(id string, props Props) error
	// DeleteNode removes the node and every relationship touching it.
	DeleteNode(id string) error

	Connect(fromID, relType, toID string, props Props) (*Rel, error)
	GetRel(id string) (*Rel, error)
	SetRelProps(id string, props Props) error
	Disconnect(id string) error
	// OutRels lists relationships leaving the node. relType "" matches
	// every type. Order is unspecified; callers sort by properties.
	OutRels(nodeID, relType string) ([]*Rel, error)
	InRels(nodeID, relType string) ([]*Rel, error)

	// NextCounter increments and returns the named counter, starting at
	// 1. Used for uid generation; see FormatUID.
	NextCounter(name string) (int64, error)
}

// Store runs transactions. Write callbacks are atomic: an error from fn
// rolls every primitive back.
type Store interface {
	Read(ctx context.Context, fn func(tx Tx) error) error
	Write(ctx context.Context, fn func(tx Tx) error) error
	Close(ctx context.Context) error
}

// FormatUID renders the public identifier for a newly counted entity,
// e.g. FormatUID("Study", 2) == "Study_000002".
func FormatUID(prefix string, n int64) string {
	return fmt.Sprintf("%s_%06d", prefix, n)
}

func (p Props) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p Props) Int64(key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (p Props) Float64(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func (p Props) Bool(key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

// Time returns the property as UTC time. ok is false when the property
// is absent or null.
func (p Props) Time(key string) (time.Time, bool) {
	if v, ok := p[key].(time.Time); ok {
		return v.UTC(), true
	}
	return time.Time{}, false
}

func (p Props) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Has reports whether the property exists and is non-nil.
func (p Props) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Clone deep-copies the map so callers can mutate without aliasing
// store state.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		if sl, ok := v.([]string); ok {
			cp := make([]string, len(sl))
			copy(cp, sl)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
