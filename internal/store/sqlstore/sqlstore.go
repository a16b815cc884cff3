// Package sqlstore is the one concrete store.Store adapter wired into the
// service: sqlite (via bun, grounded on the teacher's internal/db package)
// standing in for the external document database spec §1 treats as a given
// collaborator.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"github.com/uptrace/bun"

	"settingsvc/internal/store"
)

// Store implements store.Store over a single sqlite table, split across the
// DB's read and write bun handles (spec: reads must not block on the
// single sqlite writer).
type Store struct {
	db *DB
}

// New wraps an already-migrated *DB.
func New(db *DB) *Store {
	return &Store{db: db}
}

func toRecord(m *recordModel) store.Record {
	v, err := decodeValue(m.ValueJSON)
	if err != nil {
		v = map[string]any{}
	}
	country := ""
	if m.Country.Valid {
		country = m.Country.String
	}
	return store.Record{
		ID:        m.ID,
		Kind:      m.Kind,
		Category:  m.Category,
		AppID:     m.AppID,
		Value:     v,
		Country:   country,
		Condition: decodeCondition(m.ConditionJ),
	}
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(page string) (int, error) {
	if page == "" {
		return 0, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(page)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(b))
}

// Find implements store.Store. AppIDs, when set, matches any of those app
// ids; otherwise AppID is applied as a filter only when q.AppScoped is true.
func (s *Store) Find(ctx context.Context, q store.Query) (store.FindResult, error) {
	offset, err := decodeCursor(q.Page)
	if err != nil {
		return store.FindResult{}, fmt.Errorf("decode page cursor: %w", err)
	}
	limit := q.Limit
	if limit <= 0 || limit > store.DefaultPageSize {
		limit = store.DefaultPageSize
	}

	sel := s.db.ReadDB().NewSelect().Model((*recordModel)(nil))
	if q.Kind != "" {
		sel = sel.Where("kind = ?", q.Kind)
	}
	if q.Category != "" {
		sel = sel.Where("category = ?", q.Category)
	}
	if len(q.IDs) > 0 {
		sel = sel.Where("id IN (?)", bun.In(q.IDs))
	}
	if len(q.AppIDs) > 0 {
		sel = sel.Where("app_id IN (?)", bun.In(q.AppIDs))
	} else if q.AppScoped {
		sel = sel.Where("app_id = ?", q.AppID)
	}

	total, err := sel.Count(ctx)
	if err != nil {
		return store.FindResult{}, err
	}

	var rows []recordModel
	if err := sel.OrderExpr("id ASC").Offset(offset).Limit(limit).Scan(ctx, &rows); err != nil {
		return store.FindResult{}, err
	}

	results := make([]store.Record, 0, len(rows))
	for i := range rows {
		results = append(results, toRecord(&rows[i]))
	}

	next := ""
	if offset+len(rows) < total {
		next = encodeCursor(offset + len(rows))
	}

	return store.FindResult{ReturnValue: true, Results: results, Next: next, Count: total}, nil
}

// Merge updates only existing rows matching q, setting each entry of props
// onto the row's value object via a dotted-path sjson merge (spec §4.2.1,
// §9 "tagged-variant property nodes"). Count==0 means no row matched.
func (s *Store) Merge(ctx context.Context, q store.Query, props map[string]any) (store.MergeResult, error) {
	var rows []recordModel
	sel := s.db.WriteDB().NewSelect().Model(&rows).Where("kind = ? AND category = ? AND app_id = ?", q.Kind, q.Category, q.AppID)
	if err := sel.Scan(ctx); err != nil {
		return store.MergeResult{}, err
	}
	if len(rows) == 0 {
		return store.MergeResult{ReturnValue: true, Count: 0}, nil
	}

	count := 0
	for i := range rows {
		merged, err := mergeProps(rows[i].ValueJSON, props)
		if err != nil {
			return store.MergeResult{}, err
		}
		rows[i].ValueJSON = merged
		if _, err := s.db.WriteDB().NewUpdate().Model(&rows[i]).Column("value_json", "updated_at").WherePK().Exec(ctx); err != nil {
			return store.MergeResult{}, err
		}
		count++
	}
	return store.MergeResult{ReturnValue: true, Count: count}, nil
}

// MergePut merges if a row exists, else creates one (spec §4.5).
func (s *Store) MergePut(ctx context.Context, q store.Query, props map[string]any) (store.MergeResult, error) {
	res, err := s.Merge(ctx, q, props)
	if err != nil {
		return store.MergeResult{}, err
	}
	if res.Count > 0 {
		return res, nil
	}
	valueJSON, err := encodeValue(props)
	if err != nil {
		return store.MergeResult{}, err
	}
	m := &recordModel{
		ID:        uuid.NewString(),
		Kind:      q.Kind,
		Category:  q.Category,
		AppID:     q.AppID,
		ValueJSON: valueJSON,
	}
	if _, err := s.db.WriteDB().NewInsert().Model(m).Exec(ctx); err != nil {
		return store.MergeResult{}, err
	}
	return store.MergeResult{ReturnValue: true, Count: 1}, nil
}

// Put creates rows; atomic across the whole objects list (spec §4.5).
func (s *Store) Put(ctx context.Context, objects []store.Record) (store.PutResult, error) {
	if len(objects) == 0 {
		return store.PutResult{ReturnValue: true}, nil
	}
	rows := make([]*recordModel, 0, len(objects))
	for _, o := range objects {
		id := o.ID
		if id == "" {
			id = uuid.NewString()
		}
		valueJSON, err := encodeValue(o.Value)
		if err != nil {
			return store.PutResult{}, err
		}
		rows = append(rows, &recordModel{
			ID:         id,
			Kind:       o.Kind,
			Category:   o.Category,
			AppID:      o.AppID,
			Country:    sql.NullString{String: o.Country, Valid: o.Country != ""},
			ValueJSON:  valueJSON,
			ConditionJ: encodeCondition(o.Condition),
		})
	}

	return store.PutResult{ReturnValue: true}, s.db.WriteDB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, r := range rows {
			if _, err := tx.NewInsert().Model(r).
				On("CONFLICT (id) DO UPDATE").
				Set("value_json = EXCLUDED.value_json").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Del removes rows matching q.IDs (if set) or (kind, category, app_id).
// Outside the CategoryPrefix case an empty Kind or Category matches every
// value; app_id is applied only when q.AppScoped is true.
func (s *Store) Del(ctx context.Context, q store.Query) (store.DelResult, error) {
	del := s.db.WriteDB().NewDelete().Model((*recordModel)(nil))
	switch {
	case len(q.IDs) > 0:
		del = del.Where("id IN (?)", bun.In(q.IDs))
	case q.CategoryPrefix:
		del = del.Where("kind = ? AND (category = ? OR category LIKE ?)", q.Kind, q.Category, q.Category+"$%")
		if q.AppScoped {
			del = del.Where("app_id = ?", q.AppID)
		}
	default:
		if q.Kind != "" {
			del = del.Where("kind = ?", q.Kind)
		}
		if q.Category != "" {
			del = del.Where("category = ?", q.Category)
		}
		if q.AppScoped {
			del = del.Where("app_id = ?", q.AppID)
		}
	}
	res, err := del.Exec(ctx)
	if err != nil {
		return store.DelResult{}, err
	}
	n, _ := res.RowsAffected()
	return store.DelResult{ReturnValue: true, Count: int(n)}, nil
}

// Batch runs each op in order against this Store and aggregates replies
// positionally (spec §4.5); atomicity is per-operation, not across the
// batch, matching the DB contract's "atomic per operation" note.
func (s *Store) Batch(ctx context.Context, ops []store.BatchOp) (store.BatchResult, error) {
	out := store.BatchResult{ReturnValue: true, Responses: make([]store.BatchResponse, len(ops))}
	for i, op := range ops {
		switch strings.ToLower(op.Method) {
		case "find":
			r, err := s.Find(ctx, op.Query)
			if err != nil {
				return store.BatchResult{}, err
			}
			out.Responses[i] = store.BatchResponse{ReturnValue: r.ReturnValue, Find: &r}
		case "merge":
			r, err := s.Merge(ctx, op.Query, op.Props)
			if err != nil {
				return store.BatchResult{}, err
			}
			out.Responses[i] = store.BatchResponse{ReturnValue: r.ReturnValue, Merge: &r}
		case "mergeput":
			r, err := s.MergePut(ctx, op.Query, op.Props)
			if err != nil {
				return store.BatchResult{}, err
			}
			out.Responses[i] = store.BatchResponse{ReturnValue: r.ReturnValue, Merge: &r}
		case "put":
			r, err := s.Put(ctx, op.Put)
			if err != nil {
				return store.BatchResult{}, err
			}
			out.Responses[i] = store.BatchResponse{ReturnValue: r.ReturnValue, Put: &r}
		case "del":
			r, err := s.Del(ctx, op.Query)
			if err != nil {
				return store.BatchResult{}, err
			}
			out.Responses[i] = store.BatchResponse{ReturnValue: r.ReturnValue, Del: &r}
		default:
			return store.BatchResult{}, fmt.Errorf("sqlstore: unknown batch method %q", op.Method)
		}
	}
	return out, nil
}

// mergeProps applies each top-level (or dotted-path) key in props onto the
// record's existing value JSON, using sjson so nested paths ("ui.hint")
// merge without a full unmarshal/remarshal round-trip. A nil prop value
// deletes that property (RFC 7396 JSON Merge Patch convention), used by
// delete/reset handlers to drop individual keys from a shared partition
// row without deleting the row itself.
func mergeProps(valueJSON string, props map[string]any) (string, error) {
	if valueJSON == "" {
		valueJSON = "{}"
	}
	out := valueJSON
	var err error
	for k, v := range props {
		if v == nil {
			out, err = sjson.Delete(out, k)
			if err != nil {
				return "", err
			}
			continue
		}
		out, err = sjson.Set(out, k, v)
		if err != nil {
			return "", err
		}
	}
	return out, nil
}
