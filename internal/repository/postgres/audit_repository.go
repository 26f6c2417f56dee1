package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mallify-hub/internal/model"
	"mallify-hub/internal/repository"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return &auditRepository{pool: pool}
}

var _ repository.AuditRepository = (*auditRepository)(nil)

const auditColumns = `
	id,
	actor_id,
	actor_role,
	action,
	resource_type,
	resource_id,
	payload,
	status,
	ip_address,
	user_agent,
	created_at
`

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	payload, err := encodeJSONMap(log.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (
			actor_id,
			actor_role,
			action,
			resource_type,
			resource_id,
			payload,
			status,
			ip_address,
			user_agent,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	return r.pool.QueryRow(
		ctx,
		query,
		log.ActorID,
		log.ActorRole,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		payload,
		log.Status,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	).Scan(&log.ID)
}

func (r *auditRepository) List(ctx context.Context, filter repository.AuditListFilter) ([]*model.AuditLog, int64, error) {
	limit, offset := normalizePagination(filter.Pagination)

	args := make([]any, 0, 9)
	conditions := make([]string, 0, 6)

	if filter.Action != nil {
		args = append(args, *filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.ResourceType != nil {
		args = append(args, *filter.ResourceType)
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if filter.ResourceID != nil {
		args = append(args, *filter.ResourceID)
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if filter.StartTime != nil {
		args = append(args, *filter.StartTime)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndTime != nil {
		args = append(args, *filter.EndTime)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	var builder strings.Builder
	builder.WriteString("SELECT ")
	builder.WriteString(auditColumns)
	builder.WriteString(" FROM audit_logs")
	builder.WriteString(where)

	args = append(args, limit, offset)
	builder.WriteString(fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)))

	rows, err := r.pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*model.AuditLog, 0, limit)
	for rows.Next() {
		item, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, item)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func scanAuditLog(src scanTarget) (*model.AuditLog, error) {
	log := &model.AuditLog{}
	var payloadRaw []byte

	err := src.Scan(
		&log.ID,
		&log.ActorID,
		&log.ActorRole,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&payloadRaw,
		&log.Status,
		&log.IPAddress,
		&log.UserAgent,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Payload, err = decodeJSONMap(payloadRaw)
	if err != nil {
		return nil, err
	}

	return log, nil
}
