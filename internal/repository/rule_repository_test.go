package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangpulih/clinic-api/internal/models"
)

func newRuleRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func ruleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "type", "conditions", "actions", "scope", "priority", "is_active", "created_at", "updated_at"})
}

func TestRuleRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRuleRepoMock(t)
	defer cleanup()

	repo := NewRuleRepository(db)
	rows := ruleRows().
		AddRow("rule-1", "Business hours", "", "TIME_CONSTRAINT",
			[]byte(`{"startTime":"09:00","endTime":"17:00"}`),
			[]byte(`{"type":"DENY"}`),
			[]byte(`{"applyToAll":true}`),
			80, true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, name, description").
		WithArgs("TIME_CONSTRAINT", true).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("TIME_CONSTRAINT", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	active := true
	rules, total, err := repo.List(context.Background(), models.RuleFilter{
		Type:     string(models.RuleTypeTimeConstraint),
		IsActive: &active,
	})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "09:00", rules[0].Conditions.StartTime)
	assert.True(t, rules[0].Scope.ApplyToAll)
}

func TestRuleRepositoryListActiveOrdersByPriority(t *testing.T) {
	db, mock, cleanup := newRuleRepoMock(t)
	defer cleanup()

	repo := NewRuleRepository(db)
	rows := ruleRows().
		AddRow("rule-hi", "High", "", "CAPACITY_LIMIT",
			[]byte(`{"maxSessionsPerDay":6}`), []byte(`{"type":"DENY"}`), []byte(`{}`),
			90, true, time.Now(), time.Now()).
		AddRow("rule-lo", "Low", "", "ADVANCE_BOOKING",
			[]byte(`{"minAdvanceBooking":1}`), []byte(`{"type":"WARN"}`), []byte(`{}`),
			10, true, time.Now(), time.Now())
	mock.ExpectQuery("WHERE is_active = TRUE ORDER BY priority DESC").
		WillReturnRows(rows)

	rules, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "rule-hi", rules[0].ID)
	assert.Equal(t, 6, *rules[0].Conditions.MaxSessionsPerDay)
}

func TestRuleRepositoryListAllSkipsPagination(t *testing.T) {
	db, mock, cleanup := newRuleRepoMock(t)
	defer cleanup()

	repo := NewRuleRepository(db)
	rows := ruleRows().
		AddRow("rule-1", "Hours", "", "TIME_CONSTRAINT",
			[]byte(`{"startTime":"09:00","endTime":"17:00"}`), []byte(`{"type":"DENY"}`), []byte(`{}`),
			50, true, time.Now(), time.Now())
	// The query must end at the ORDER BY, with no LIMIT clause.
	mock.ExpectQuery(`type = \$1 ORDER BY priority DESC, created_at DESC$`).
		WithArgs(string(models.RuleTypeTimeConstraint)).
		WillReturnRows(rows)

	rules, err := repo.ListAll(context.Background(), models.RuleFilter{
		Type:     string(models.RuleTypeTimeConstraint),
		Page:     3,
		PageSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "rule-1", rules[0].ID)
}

func TestRuleRepositoryCreateAssignsIDAndTimestamps(t *testing.T) {
	db, mock, cleanup := newRuleRepoMock(t)
	defer cleanup()

	repo := NewRuleRepository(db)
	mock.ExpectExec("INSERT INTO scheduling_rules").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rule := &models.SchedulingRule{
		Name:       "Weekday only",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{DaysOfWeek: []int{1, 2, 3, 4, 5}},
		Actions:    models.RuleActions{Type: models.RuleActionDeny},
		Priority:   50,
		IsActive:   true,
	}
	require.NoError(t, repo.Create(context.Background(), rule))

	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())
	assert.False(t, rule.UpdatedAt.IsZero())
}

func TestRuleRepositoryUpdateNeverTouchesType(t *testing.T) {
	db, mock, cleanup := newRuleRepoMock(t)
	defer cleanup()

	repo := NewRuleRepository(db)
	mock.ExpectExec("UPDATE scheduling_rules SET name").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rule := &models.SchedulingRule{
		ID:      "rule-1",
		Name:    "Renamed",
		Type:    models.RuleTypeCapacityLimit,
		Actions: models.RuleActions{Type: models.RuleActionDeny},
	}
	require.NoError(t, repo.Update(context.Background(), rule))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRuleRepoMock(t)
	defer cleanup()

	repo := NewRuleRepository(db)
	mock.ExpectExec("UPDATE scheduling_rules SET is_active = FALSE").
		WithArgs("rule-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "rule-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
