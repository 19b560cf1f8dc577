// Package resource maps logical resource paths onto the record they address.
//
// Two shapes exist: the collection path /products and the item path
// /products/{id} where id is a positive integer.
package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind tells whether a path addresses the whole collection or one record.
type Kind int

const (
	Collection Kind = iota + 1
	Item
)

func (k Kind) String() string {
	switch k {
	case Collection:
		return "collection"
	case Item:
		return "item"
	default:
		return "unknown"
	}
}

// Operation is one of the store operations a path can be routed to.
type Operation int

const (
	OpQuery Operation = iota + 1
	OpInsert
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpQuery:
		return "query"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

const (
	// Authority identifies the inventory in vendor content types.
	Authority = "com.example.android.bookstoreinventory"
	// Products is the name of the collection segment and of the table.
	Products = "products"

	listContentType = "vnd.android.cursor.dir/" + Authority + "/" + Products
	itemContentType = "vnd.android.cursor.item/" + Authority + "/" + Products
)

var (
	ErrUnknownPath      = errors.New("unknown resource path")
	ErrUnsupportedOp    = errors.New("operation not supported for path")
	errNonPositiveID    = errors.New("id must be a positive integer")
	collectionPathValue = "/" + Products
)

// Target is the result of matching a path.
type Target struct {
	Kind Kind
	ID   int64
}

// Path renders the target back into its canonical path.
func (t Target) Path() string {
	if t.Kind == Item {
		return ItemPath(t.ID)
	}
	return CollectionPath()
}

type route struct {
	kind        Kind
	contentType string
	ops         []Operation
}

// routes is keyed by the number of path segments after the collection name.
var routes = map[int]route{
	0: {kind: Collection, contentType: listContentType, ops: []Operation{OpQuery, OpInsert, OpDelete}},
	1: {kind: Item, contentType: itemContentType, ops: []Operation{OpQuery, OpUpdate, OpDelete}},
}

var routesByKind = func() map[Kind]route {
	m := make(map[Kind]route, len(routes))
	for _, r := range routes {
		m[r.kind] = r
	}
	return m
}()

// Match resolves path to a Target. A trailing slash is ignored.
func Match(path string) (Target, error) {
	trimmed := strings.TrimSuffix(path, "/")
	rest, ok := strings.CutPrefix(trimmed, collectionPathValue)
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	var segments []string
	if rest != "" {
		if !strings.HasPrefix(rest, "/") {
			return Target{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
		}
		segments = strings.Split(rest[1:], "/")
	}
	r, ok := routes[len(segments)]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownPath, path)
	}
	target := Target{Kind: r.kind}
	if r.kind == Item {
		id, err := parseID(segments[0])
		if err != nil {
			return Target{}, fmt.Errorf("%w: %q: %w", ErrUnknownPath, path, err)
		}
		target.ID = id
	}
	return target, nil
}

func parseID(s string) (int64, error) {
	if s == "" || s[0] == '+' {
		return 0, errNonPositiveID
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errNonPositiveID
	}
	return id, nil
}

// CollectionPath returns /products.
func CollectionPath() string {
	return collectionPathValue
}

// ItemPath returns /products/{id}.
func ItemPath(id int64) string {
	return collectionPathValue + "/" + strconv.FormatInt(id, 10)
}

// ContentType returns the vendor media type for a kind, or "" for an unknown kind.
func ContentType(kind Kind) string {
	return routesByKind[kind].contentType
}

// Operations lists the operations a kind accepts. Insert targets the collection only,
// update targets a single record.
func Operations(kind Kind) []Operation {
	ops := routesByKind[kind].ops
	out := make([]Operation, len(ops))
	copy(out, ops)
	return out
}

// Allow returns ErrUnsupportedOp when op cannot be routed to kind.
func Allow(kind Kind, op Operation) error {
	for _, o := range routesByKind[kind].ops {
		if o == op {
			return nil
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrUnsupportedOp, op, kind)
}
