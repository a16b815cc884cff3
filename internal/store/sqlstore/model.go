package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// recordModel is the single physical table backing every settings-record
// kind except "volatile" (spec §3.1). One table, filtered by kind, mirrors
// the original implementation's single db8 kind-partitioned collection more
// closely than splitting into per-kind tables, and keeps Find/Merge/Put/Del
// uniform.
type recordModel struct {
	bun.BaseModel `bun:"table:settings_records,alias:r"`

	ID         string         `bun:"id,pk"`
	Kind       string         `bun:"kind"`
	Category   string         `bun:"category"`
	AppID      string         `bun:"app_id"`
	Country    sql.NullString `bun:"country,nullzero"`
	ValueJSON  string         `bun:"value_json"`
	ConditionJ sql.NullString `bun:"condition_json,nullzero"`
	CreatedAt  time.Time      `bun:"created_at"`
	UpdatedAt  time.Time      `bun:"updated_at"`
}

func (m *recordModel) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	_ = ctx
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
	case *bun.UpdateQuery:
		m.UpdatedAt = now
	}
	return nil
}

func decodeValue(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeValue(v map[string]any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCondition(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return nil
	}
	return v
}

func encodeCondition(v map[string]any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
