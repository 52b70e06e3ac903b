package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/models"
)

// postgresStore is the durable half of CompositeStore: queue and task
// records, their full history, and metrics snapshots. Grounded on the
// teacher's database.Connection (pool lifecycle) and database.taskRepository
// (query shape, pgx error classification).
type postgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func newPostgresStore(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (*postgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort,
		cfg.PostgresDatabase, cfg.PostgresSSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	return &postgresStore{pool: pool, logger: logger}, nil
}

func (p *postgresStore) ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *postgresStore) close() {
	p.pool.Close()
}

func (p *postgresStore) saveQueue(ctx context.Context, q *models.Queue) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return NewOperationError("save_queue", q.ID, err, true)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	settingsJSON, _ := json.Marshal(q.Settings)
	metricsJSON, _ := json.Marshal(q.Metrics)

	_, err = tx.Exec(ctx, `
		INSERT INTO queues (id, name, description, status, settings, metrics, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, status = EXCLUDED.status,
			settings = EXCLUDED.settings, metrics = EXCLUDED.metrics,
			started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at
	`, q.ID, q.Name, q.Description, q.Status, settingsJSON, metricsJSON, q.CreatedAt, q.StartedAt, q.CompletedAt)
	if err != nil {
		return NewOperationError("save_queue", q.ID, err, true)
	}

	for position, t := range q.Tasks {
		if err := p.upsertTaskTx(ctx, tx, t, position); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return NewOperationError("save_queue", q.ID, err, true)
	}
	return nil
}

func (p *postgresStore) loadQueue(ctx context.Context, id string) (*models.Queue, error) {
	var q models.Queue
	var settingsJSON, metricsJSON []byte

	err := p.pool.QueryRow(ctx, `
		SELECT id, name, description, status, settings, metrics, created_at, started_at, completed_at
		FROM queues WHERE id = $1
	`, id).Scan(&q.ID, &q.Name, &q.Description, &q.Status, &settingsJSON, &metricsJSON, &q.CreatedAt, &q.StartedAt, &q.CompletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewOperationError("load_queue", id, err, true)
	}

	_ = json.Unmarshal(settingsJSON, &q.Settings)
	_ = json.Unmarshal(metricsJSON, &q.Metrics)

	tasks, err := p.loadTasksForQueue(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Tasks = tasks
	return &q, nil
}

func (p *postgresStore) loadTasksForQueue(ctx context.Context, queueID string) ([]*models.Task, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, queue_id, agent_id, message, priority, estimated_complexity, status,
		       retry_count, max_retries, created_at, started_at, completed_at, result, error
		FROM tasks WHERE queue_id = $1 ORDER BY position ASC
	`, queueID)
	if err != nil {
		return nil, NewOperationError("load_tasks", queueID, err, true)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, NewOperationError("load_tasks", queueID, err, true)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var complexity *string
	var resultJSON, errorJSON []byte

	if err := row.Scan(
		&t.ID, &t.QueueID, &t.AgentID, &t.Message, &t.Priority, &complexity, &t.Status,
		&t.RetryCount, &t.MaxRetries, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &resultJSON, &errorJSON,
	); err != nil {
		return nil, err
	}

	if complexity != nil {
		c := models.TaskComplexity(*complexity)
		t.EstimatedComplexity = &c
	}
	if len(resultJSON) > 0 {
		var r models.TaskResult
		if err := json.Unmarshal(resultJSON, &r); err == nil {
			t.Result = &r
		}
	}
	if len(errorJSON) > 0 {
		var e models.TaskError
		if err := json.Unmarshal(errorJSON, &e); err == nil {
			t.Error = &e
		}
	}
	return &t, nil
}

func (p *postgresStore) deleteQueue(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM queues WHERE id = $1`, id)
	if err != nil {
		return NewOperationError("delete_queue", id, err, true)
	}
	return nil
}

func (p *postgresStore) listQueues(ctx context.Context) ([]models.QueueSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT q.id, q.name, q.status, q.created_at,
		       COUNT(t.id) AS task_count,
		       COUNT(t.id) FILTER (WHERE t.status = 'completed') AS completed_count
		FROM queues q
		LEFT JOIN tasks t ON t.queue_id = q.id
		GROUP BY q.id
		ORDER BY q.created_at DESC
	`)
	if err != nil {
		return nil, NewOperationError("list_queues", "", err, true)
	}
	defer rows.Close()

	var summaries []models.QueueSummary
	for rows.Next() {
		var s models.QueueSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Status, &s.CreatedAt, &s.TaskCount, &s.CompletedCount); err != nil {
			return nil, NewOperationError("list_queues", "", err, true)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (p *postgresStore) updateQueueStatus(ctx context.Context, id string, status models.QueueStatus, ts *time.Time) error {
	var startedAt, completedAt *time.Time
	if ts != nil && status == models.QueueStatusRunning {
		startedAt = ts
	}
	if ts != nil && (status == models.QueueStatusCompleted || status == models.QueueStatusFailed) {
		completedAt = ts
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE queues SET status = $1,
			started_at = COALESCE($2, started_at),
			completed_at = COALESCE($3, completed_at)
		WHERE id = $4
	`, status, startedAt, completedAt, id)
	if err != nil {
		return NewOperationError("update_queue_status", id, err, true)
	}
	if tag.RowsAffected() == 0 {
		return NewOperationError("update_queue_status", id, ErrQueueNotFound, false)
	}
	return nil
}

func (p *postgresStore) updateQueueMetrics(ctx context.Context, id string, metrics models.QueueMetrics) error {
	metricsJSON, _ := json.Marshal(metrics)
	tag, err := p.pool.Exec(ctx, `UPDATE queues SET metrics = $1 WHERE id = $2`, metricsJSON, id)
	if err != nil {
		return NewOperationError("update_queue_metrics", id, err, true)
	}
	if tag.RowsAffected() == 0 {
		return NewOperationError("update_queue_metrics", id, ErrQueueNotFound, false)
	}
	return nil
}

func (p *postgresStore) saveTask(ctx context.Context, t *models.Task) error {
	var position int
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE queue_id = $1`, t.QueueID).Scan(&position)
	if err != nil {
		return NewOperationError("save_task", t.ID, err, true)
	}
	return p.upsertTaskTx(ctx, p.pool, t, position)
}

// execer is the subset of *pgxpool.Pool and pgx.Tx used by upsertTaskTx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func (p *postgresStore) upsertTaskTx(ctx context.Context, q execer, t *models.Task, position int) error {
	resultJSON, errorJSON := marshalResultError(t.Result, t.Error)
	var complexity *string
	if t.EstimatedComplexity != nil {
		c := string(*t.EstimatedComplexity)
		complexity = &c
	}

	_, err := q.Exec(ctx, `
		INSERT INTO tasks (id, queue_id, agent_id, message, priority, estimated_complexity, status,
		                    retry_count, max_retries, created_at, started_at, completed_at, result, error, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id, message = EXCLUDED.message, priority = EXCLUDED.priority,
			estimated_complexity = EXCLUDED.estimated_complexity, status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count, max_retries = EXCLUDED.max_retries,
			started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at,
			result = EXCLUDED.result, error = EXCLUDED.error
	`, t.ID, t.QueueID, t.AgentID, t.Message, t.Priority, complexity, t.Status,
		t.RetryCount, t.MaxRetries, t.CreatedAt, t.StartedAt, t.CompletedAt, resultJSON, errorJSON, position)
	if err != nil {
		return NewOperationError("save_task", t.ID, err, true)
	}
	return nil
}

func marshalResultError(result *models.TaskResult, taskErr *models.TaskError) ([]byte, []byte) {
	var resultJSON, errorJSON []byte
	if result != nil {
		resultJSON, _ = json.Marshal(result)
	}
	if taskErr != nil {
		errorJSON, _ = json.Marshal(taskErr)
	}
	return resultJSON, errorJSON
}

func (p *postgresStore) loadTask(ctx context.Context, id string) (*models.Task, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, queue_id, agent_id, message, priority, estimated_complexity, status,
		       retry_count, max_retries, created_at, started_at, completed_at, result, error
		FROM tasks WHERE id = $1
	`, id)

	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewOperationError("load_task", id, err, true)
	}
	return t, nil
}

func (p *postgresStore) updateTask(ctx context.Context, id string, update models.TaskUpdate) error {
	existing, err := p.loadTask(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return NewOperationError("update_task", id, ErrTaskNotFound, false)
	}

	if update.Status != nil {
		existing.Status = *update.Status
	}
	if update.StartedAt != nil {
		existing.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		existing.CompletedAt = update.CompletedAt
	}
	if update.Result != nil {
		existing.Result = update.Result
	}
	if update.ClearResult {
		existing.Result = nil
	}
	if update.Error != nil {
		existing.Error = update.Error
	}
	if update.ClearError {
		existing.Error = nil
	}
	if update.RetryCount != nil {
		existing.RetryCount = *update.RetryCount
	}

	resultJSON, errorJSON := marshalResultError(existing.Result, existing.Error)
	_, err = p.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, started_at = $2, completed_at = $3, result = $4, error = $5, retry_count = $6
		WHERE id = $7
	`, existing.Status, existing.StartedAt, existing.CompletedAt, resultJSON, errorJSON, existing.RetryCount, id)
	if err != nil {
		return NewOperationError("update_task", id, err, true)
	}
	return nil
}

func (p *postgresStore) loadInterruptedQueues(ctx context.Context) ([]*models.Queue, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM queues WHERE status IN ('running', 'paused')`)
	if err != nil {
		return nil, NewOperationError("load_interrupted_queues", "", err, true)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, NewOperationError("load_interrupted_queues", "", err, true)
		}
		ids = append(ids, id)
	}
	rows.Close()

	var result []*models.Queue
	for _, id := range ids {
		q, err := p.loadQueue(ctx, id)
		if err != nil {
			return nil, err
		}
		if q != nil {
			result = append(result, q)
		}
	}
	return result, nil
}

func (p *postgresStore) resetInterruptedQueueTasks(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE tasks SET status = 'pending', started_at = NULL
		WHERE queue_id = $1 AND status IN ('in_progress', 'retrying')
	`, id)
	if err != nil {
		return NewOperationError("reset_interrupted_queue", id, err, true)
	}

	_, err = p.pool.Exec(ctx, `UPDATE queues SET status = 'paused' WHERE id = $1`, id)
	if err != nil {
		return NewOperationError("reset_interrupted_queue", id, err, true)
	}
	return nil
}
