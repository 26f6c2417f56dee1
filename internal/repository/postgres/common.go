package postgres

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"

	"mallify-hub/internal/repository"
)

var ErrNotFound = repository.ErrNotFound

type scanTarget interface {
	Scan(dest ...any) error
}

func normalizePagination(page repository.Pagination) (int32, int32) {
	limit := page.Limit
	offset := page.Offset

	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

func decodeJSONMap(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func encodeJSONMap(value map[string]interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}

func ensureAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
