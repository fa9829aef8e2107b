// Package record is the boundary between the scoring core and the external
// record store. Store is the raw collection interface every backend
// implements; Repository turns raw records into validated model types.
package record

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Record is one raw row as exchanged with the store.
type Record map[string]any

// Filter selects records by equality on every listed field.
type Filter map[string]any

// Collection names a table of the store and its primary key column.
type Collection struct {
	Name string
	Key  string
}

func (c Collection) String() string { return c.Name }

var (
	Evaluations   = Collection{Name: "ce_evaluacion", Key: "id_evaluacion"}
	Capabilities  = Collection{Name: "ce_capacidad", Key: "id_capacidad"}
	Dimensions    = Collection{Name: "ce_dimension", Key: "id_dimension"}
	Questions     = Collection{Name: "ce_pregunta", Key: "id_pregunta"}
	AnswerOptions = Collection{Name: "ce_opcion_respuesta", Key: "id_opcion"}
	Answers       = Collection{Name: "ce_respuesta", Key: "id_respuesta"}
	Weights       = Collection{Name: "ce_ponderacion", Key: "id_ponderacion"}
	Scores        = Collection{Name: "ce_score_cap_dim", Key: "id_score"}
	Rules         = Collection{Name: "ce_regla", Key: "id_regla"}
	Conditions    = Collection{Name: "ce_condicion_regla", Key: "id_condicion"}
	RuleResults   = Collection{Name: "ce_resultado_regla", Key: "id_resultado_regla"}
)

// AllCollections lists the collections in dependency order: a collection
// only references collections listed before it.
var AllCollections = []Collection{
	Capabilities, Dimensions, Evaluations, Questions, AnswerOptions, Answers,
	Weights, Scores, Rules, Conditions, RuleResults,
}

// CollectionByName resolves a collection from its table name.
func CollectionByName(name string) (Collection, bool) {
	for _, c := range AllCollections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// Store is the read/write interface of the record store. Implementations
// assign identifiers on Create and return the stored record.
type Store interface {
	Get(ctx context.Context, c Collection, id int64) (Record, error)
	List(ctx context.Context, c Collection, f Filter) ([]Record, error)
	Create(ctx context.Context, c Collection, fields Record) (Record, error)
	Update(ctx context.Context, c Collection, id int64, fields Record) (Record, error)
	Delete(ctx context.Context, c Collection, id int64) error
}

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("record not found")

// NotFoundError is returned by Get, Update and Delete for unknown keys.
type NotFoundError struct {
	Collection string
	ID         int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d: %v", e.Collection, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StoreError wraps any failure reported by the store: connectivity, 4xx/5xx
// responses, driver errors. It is never retried by the core.
type StoreError struct {
	Op         string
	Collection string
	ID         int64
	// Status is the HTTP status for HTTP-backed stores, zero otherwise.
	Status int
	Err    error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store error: op=%s, collection=%s", e.Op, e.Collection)
	if e.ID != 0 {
		msg += fmt.Sprintf(", id=%d", e.ID)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(", status=%d", e.Status)
	}
	return msg + fmt.Sprintf(", err=%v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a StoreError without an HTTP status.
func NewStoreError(op string, c Collection, id int64, err error) *StoreError {
	return &StoreError{Op: op, Collection: c.Name, ID: id, Err: err}
}

// IDOf extracts the primary key of r for collection c.
func IDOf(c Collection, r Record) (int64, bool) {
	return toInt64(r[c.Key])
}

// Matches reports whether r satisfies every equality in f. Numbers compare
// by value regardless of their Go type, so 5, int64(5) and 5.0 are equal.
func Matches(r Record, f Filter) bool {
	for field, want := range f {
		if !sameValue(r[field], want) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat64(a); ok {
		if fb, ok := toFloat64(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
