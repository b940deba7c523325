package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

const donationColumns = `d.id, d.subcategory_id, s.category_id, d.amount, d.payment_method, d.payment_status,
        d.donor_id, u.name, d.donor_details, d.created_by, d.transaction_ref, d.created_at`

const donationFrom = ` FROM donations d
        JOIN subcategories s ON s.id = d.subcategory_id
        LEFT JOIN users u ON u.id = d.donor_id`

type DonationRepository struct {
	db *sql.DB
}

func NewDonationRepository(db *sql.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) List(ctx context.Context, query domain.DonationQuery) (domain.Page[domain.Donation], error) {
	page, limit, offset := pageWindow(query.Page, query.Limit)

	var where whereBuilder
	if query.SubcategoryID != "" {
		where.add("d.subcategory_id = $%d", query.SubcategoryID)
	}
	if query.DonorID != "" {
		where.add("d.donor_id = $%d", query.DonorID)
	}
	if query.CategoryID != "" {
		where.add("s.category_id = $%d", query.CategoryID)
	}
	if query.PublicOnly {
		where.add("d.payment_status = $%d", string(domain.DonationSuccess))
	}
	where.applyFilter(query.Filter, "d.created_at", "d.payment_status")

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+donationFrom+where.sql(), where.args...).Scan(&count); err != nil {
		return domain.Page[domain.Donation]{}, err
	}

	args := append(where.args, limit, offset)
	stmt := "SELECT " + donationColumns + donationFrom + where.sql() +
		orderBy(query.Filter, "d.created_at", "d.amount", "d.id") +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return domain.Page[domain.Donation]{}, err
	}
	defer rows.Close()

	donations := []domain.Donation{}
	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			return domain.Page[domain.Donation]{}, err
		}
		donations = append(donations, *donation)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Donation]{}, err
	}
	return domain.Page[domain.Donation]{Items: donations, Page: page, TotalPages: totalPages(count, limit)}, nil
}

func (r *DonationRepository) FindByID(ctx context.Context, id string) (*domain.Donation, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+donationColumns+donationFrom+" WHERE d.id = $1", id)
	donation, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgerErrors.ErrNotFound
	}
	return donation, err
}

func (r *DonationRepository) findByReference(ctx context.Context, ref string) (*domain.Donation, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+donationColumns+donationFrom+" WHERE d.transaction_ref = $1", ref)
	return scanDonation(row)
}

// Create inserts the donation unless one with the same transaction reference
// exists, in which case donation is overwritten with the stored row.
func (r *DonationRepository) Create(ctx context.Context, donation *domain.Donation) (bool, error) {
	details, err := encodeDonor(donation.Donor)
	if err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO donations
        (id, subcategory_id, amount, payment_method, payment_status, donor_id, donor_details, created_by, transaction_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (transaction_ref) DO NOTHING`,
		donation.ID, donation.SubcategoryID, donation.Amount, donation.PaymentMethod, donation.PaymentStatus,
		donation.Donor.UserID, details, donation.CreatedBy, donation.TransactionRef, donation.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 1 {
		return true, nil
	}
	existing, err := r.findByReference(ctx, donation.TransactionRef)
	if err != nil {
		return false, fmt.Errorf("donation %s exists but could not be read back: %w", donation.TransactionRef, err)
	}
	*donation = *existing
	return false, nil
}

func (r *DonationRepository) Update(ctx context.Context, donation domain.Donation) error {
	details, err := encodeDonor(donation.Donor)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE donations SET amount = $1, payment_status = $2, donor_details = $3 WHERE id = $4`,
		donation.Amount, donation.PaymentStatus, details, donation.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (r *DonationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM donations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDonation(row rowScanner) (*domain.Donation, error) {
	var (
		donation  domain.Donation
		donorID   sql.NullString
		userName  sql.NullString
		details   []byte
		createdBy sql.NullString
	)
	if err := row.Scan(&donation.ID, &donation.SubcategoryID, &donation.CategoryID, &donation.Amount,
		&donation.PaymentMethod, &donation.PaymentStatus, &donorID, &userName, &details, &createdBy,
		&donation.TransactionRef, &donation.CreatedAt); err != nil {
		return nil, err
	}
	donor, err := decodeDonor(donorID, userName, details)
	if err != nil {
		return nil, fmt.Errorf("donation %s: %w", donation.ID, err)
	}
	donation.Donor = donor
	if createdBy.Valid {
		id := createdBy.String
		donation.CreatedBy = &id
	}
	return &donation, nil
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledgerErrors.ErrNotFound
	}
	return nil
}
