package infrastructure

import (
	"context"
	"database/sql"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) ListBySubcategory(ctx context.Context, subcategoryID string) ([]domain.ManagerAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.manager_id, a.subcategory_id, u.name, u.phone,
                a.payment_method, a.account_holder_name, a.payment_image, a.use_number_for_upi
        FROM manager_assignments a JOIN users u ON u.id = a.manager_id
        WHERE a.subcategory_id = $1
        ORDER BY u.name, a.manager_id`, subcategoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := []domain.ManagerAssignment{}
	for rows.Next() {
		var (
			assignment domain.ManagerAssignment
			method     sql.NullString
			holder     sql.NullString
			image      sql.NullString
			useNumber  sql.NullBool
		)
		if err := rows.Scan(&assignment.ManagerID, &assignment.SubcategoryID, &assignment.ManagerName, &assignment.ManagerPhone,
			&method, &holder, &image, &useNumber); err != nil {
			return nil, err
		}
		if method.Valid {
			m := domain.CollectionMethod(method.String)
			assignment.Details.PaymentMethod = &m
		}
		if holder.Valid {
			assignment.Details.AccountHolderName = &holder.String
		}
		if image.Valid {
			assignment.Details.PaymentImage = &image.String
		}
		if useNumber.Valid {
			assignment.Details.UseNumberForUPI = &useNumber.Bool
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

// Create is a no-op when the manager is already assigned.
func (r *AssignmentRepository) Create(ctx context.Context, managerID, subcategoryID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO manager_assignments (manager_id, subcategory_id) VALUES ($1, $2)
        ON CONFLICT (manager_id, subcategory_id) DO NOTHING`, managerID, subcategoryID)
	return err
}

func (r *AssignmentRepository) UpdateDetails(ctx context.Context, managerID, subcategoryID string, details domain.AssignmentDetails) error {
	var method *string
	if details.PaymentMethod != nil {
		m := string(*details.PaymentMethod)
		method = &m
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE manager_assignments
        SET payment_method = $1, account_holder_name = $2, payment_image = $3, use_number_for_upi = $4
        WHERE manager_id = $5 AND subcategory_id = $6`,
		method, details.AccountHolderName, details.PaymentImage, details.UseNumberForUPI, managerID, subcategoryID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (r *AssignmentRepository) Delete(ctx context.Context, managerID, subcategoryID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM manager_assignments WHERE manager_id = $1 AND subcategory_id = $2`, managerID, subcategoryID)
	return err
}
