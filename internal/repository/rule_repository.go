package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ruangpulih/clinic-api/internal/models"
)

const ruleColumns = "id, name, description, type, conditions, actions, scope, priority, is_active, created_at, updated_at"

// RuleRepository provides persistence for scheduling rules. The conditions,
// actions and scope sub-documents live in JSON text columns and round-trip
// through the model's Scanner/Valuer implementations.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func ruleListClause(filter models.RuleFilter) (string, []interface{}) {
	base := "FROM scheduling_rules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	return base, args
}

// List returns rules matching the filter, ordered by priority descending then
// creation time descending. Scope-based filtering happens in the service
// layer because scope is a serialized sub-document.
func (r *RuleRepository) List(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, int, error) {
	base, args := ruleListClause(filter)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY priority DESC, created_at DESC LIMIT %d OFFSET %d", ruleColumns, base, size, offset)
	var rules []models.SchedulingRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list scheduling rules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count scheduling rules: %w", err)
	}

	return rules, total, nil
}

// ListAll returns every rule matching the filter without pagination. The
// service paginates itself when it has to filter by scope, since scope lives
// in a serialized sub-document the query cannot reach.
func (r *RuleRepository) ListAll(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, error) {
	base, args := ruleListClause(filter)
	query := fmt.Sprintf("SELECT %s %s ORDER BY priority DESC, created_at DESC", ruleColumns, base)
	var rules []models.SchedulingRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		return nil, fmt.Errorf("list scheduling rules: %w", err)
	}
	return rules, nil
}

// ListActive returns every active rule ordered by priority descending. This
// is the retrieval contract the validation engine depends on.
func (r *RuleRepository) ListActive(ctx context.Context) ([]models.SchedulingRule, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduling_rules WHERE is_active = TRUE ORDER BY priority DESC, created_at DESC", ruleColumns)
	var rules []models.SchedulingRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list active scheduling rules: %w", err)
	}
	return rules, nil
}

// FindByID loads a rule by id.
func (r *RuleRepository) FindByID(ctx context.Context, id string) (*models.SchedulingRule, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduling_rules WHERE id = $1", ruleColumns)
	var rule models.SchedulingRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Create stores a new rule record.
func (r *RuleRepository) Create(ctx context.Context, rule *models.SchedulingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	const query = `INSERT INTO scheduling_rules (id, name, description, type, conditions, actions, scope, priority, is_active, created_at, updated_at)
VALUES (:id, :name, :description, :type, :conditions, :actions, :scope, :priority, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create scheduling rule: %w", err)
	}
	return nil
}

// Update modifies a rule record. The type column is immutable by contract and
// deliberately absent from the update set.
func (r *RuleRepository) Update(ctx context.Context, rule *models.SchedulingRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE scheduling_rules SET name = :name, description = :description, conditions = :conditions,
actions = :actions, scope = :scope, priority = :priority, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("update scheduling rule: %w", err)
	}
	return nil
}

// SoftDelete flips is_active off. Rule history is never physically removed.
func (r *RuleRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE scheduling_rules SET is_active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete scheduling rule: %w", err)
	}
	return nil
}
