package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/order-engine/generic"
)

// =============================================================================
// STATUS GROUPS (generic.StatusStore)
// =============================================================================

type statusGroupRow struct {
	ID                 string    `db:"id"`
	Code               string    `db:"code"`
	Name               string    `db:"name"`
	Family             string    `db:"family"`
	AllowedTransitions string    `db:"allowed_transitions"`
	TransactionTypes   string    `db:"transaction_types"`
	CreatedAt          time.Time `db:"created_at"`
}

func (s *Store) CreateStatusGroup(ctx context.Context, g generic.StatusGroup) error {
	transitions, err := json.Marshal(g.AllowedTransitions)
	if err != nil {
		return fmt.Errorf("failed to encode transitions: %w", err)
	}
	types, err := json.Marshal(g.TransactionTypes)
	if err != nil {
		return fmt.Errorf("failed to encode transaction types: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO status_groups (id, code, name, family, allowed_transitions, transaction_types, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Code, g.Name, g.Family, string(transitions), string(types), g.CreatedAt)
	return err
}

func (s *Store) ListStatusGroups(ctx context.Context) ([]generic.StatusGroup, error) {
	var rows []statusGroupRow
	if err := s.selectAll(ctx, &rows, `
		SELECT id, code, name, family, allowed_transitions, transaction_types, created_at
		FROM status_groups ORDER BY code`); err != nil {
		return nil, fmt.Errorf("failed to list status groups: %w", err)
	}

	out := make([]generic.StatusGroup, 0, len(rows))
	for _, row := range rows {
		g := generic.StatusGroup{
			ID:        row.ID,
			Code:      generic.GroupCode(row.Code),
			Name:      row.Name,
			Family:    generic.Family(row.Family),
			CreatedAt: row.CreatedAt,
		}
		if err := json.Unmarshal([]byte(row.AllowedTransitions), &g.AllowedTransitions); err != nil {
			return nil, fmt.Errorf("status group %s: bad transitions: %w", row.Code, err)
		}
		if err := json.Unmarshal([]byte(row.TransactionTypes), &g.TransactionTypes); err != nil {
			return nil, fmt.Errorf("status group %s: bad transaction types: %w", row.Code, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// =============================================================================
// STATUSES
// =============================================================================

type statusRow struct {
	ID          string    `db:"id"`
	GroupCode   string    `db:"group_code"`
	Code        string    `db:"code"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	IsDefault   bool      `db:"is_default"`
	SortOrder   int       `db:"sort_order"`
	CreatedAt   time.Time `db:"created_at"`
}

func (s *Store) CreateStatus(ctx context.Context, st generic.Status) error {
	_, err := s.exec(ctx, `
		INSERT INTO statuses (id, group_code, code, name, description, is_default, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Group, st.Code, st.Name, st.Description, st.IsDefault, st.Order, st.CreatedAt)
	return err
}

func (s *Store) ListStatuses(ctx context.Context) ([]generic.Status, error) {
	var rows []statusRow
	if err := s.selectAll(ctx, &rows, `
		SELECT id, group_code, code, name, description, is_default, sort_order, created_at
		FROM statuses ORDER BY group_code, sort_order`); err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}

	out := make([]generic.Status, 0, len(rows))
	for _, row := range rows {
		out = append(out, generic.Status{
			ID:          generic.StatusID(row.ID),
			Group:       generic.GroupCode(row.GroupCode),
			Code:        generic.StatusCode(row.Code),
			Name:        row.Name,
			Description: row.Description,
			IsDefault:   row.IsDefault,
			Order:       row.SortOrder,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}
