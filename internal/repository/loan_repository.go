package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

// loanRow is the flat shape of the loans table.
type loanRow struct {
	ID                string              `db:"id"`
	LoanAccountNumber sql.NullString      `db:"loan_account_number"`
	BorrowerAccount   string              `db:"borrower_account"`
	Category          string              `db:"category"`
	Principal         decimal.Decimal     `db:"principal"`
	TenureMonths      int                 `db:"tenure_months"`
	InterestRate      decimal.Decimal     `db:"interest_rate"`
	CreditScore       int                 `db:"credit_score"`
	Status            string              `db:"status"`
	PAN               string              `db:"pan"`
	IdentityProof     string              `db:"identity_proof"`
	IncomeProof       string              `db:"income_proof"`
	Details           string              `db:"details"`
	AppliedAt         time.Time           `db:"applied_at"`
	ApprovedAt        *time.Time          `db:"approved_at"`
	ApprovedBy        string              `db:"approved_by"`
	RejectedAt        *time.Time          `db:"rejected_at"`
	RejectedBy        string              `db:"rejected_by"`
	RejectionReason   string              `db:"rejection_reason"`
	ForeclosedAt      *time.Time          `db:"foreclosed_at"`
	ForeclosureAmount decimal.NullDecimal `db:"foreclosure_amount"`
	ClosedAt          *time.Time          `db:"closed_at"`
	Version           int                 `db:"version"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

const loanColumns = `id, loan_account_number, borrower_account, category, principal, tenure_months,
	interest_rate, credit_score, status, pan, identity_proof, income_proof, details,
	applied_at, approved_at, approved_by, rejected_at, rejected_by, rejection_reason,
	foreclosed_at, foreclosure_amount, closed_at, version, updated_at`

const entryColumns = `id, loan_id, sequence, due_date, principal, interest, total, remaining_principal,
	status, paid_at, paid_from, transaction_id, balance_before, balance_after, created_at`

func toRow(loan *domain.LoanApplication) (*loanRow, error) {
	details, err := domain.EncodeDetails(loan.Details)
	if err != nil {
		return nil, err
	}
	return &loanRow{
		ID:                loan.ID,
		LoanAccountNumber: sql.NullString{String: loan.LoanAccountNumber, Valid: loan.LoanAccountNumber != ""},
		BorrowerAccount:   loan.BorrowerAccount,
		Category:          string(loan.Category),
		Principal:         loan.Principal,
		TenureMonths:      loan.TenureMonths,
		InterestRate:      loan.InterestRate,
		CreditScore:       loan.CreditScore,
		Status:            string(loan.Status),
		PAN:               loan.Documents.PAN,
		IdentityProof:     loan.Documents.IdentityProof,
		IncomeProof:       loan.Documents.IncomeProof,
		Details:           string(details),
		AppliedAt:         loan.AppliedAt,
		ApprovedAt:        loan.ApprovedAt,
		ApprovedBy:        loan.ApprovedBy,
		RejectedAt:        loan.RejectedAt,
		RejectedBy:        loan.RejectedBy,
		RejectionReason:   loan.RejectionReason,
		ForeclosedAt:      loan.ForeclosedAt,
		ForeclosureAmount: loan.ForeclosureAmount,
		ClosedAt:          loan.ClosedAt,
		Version:           loan.Version,
		UpdatedAt:         loan.UpdatedAt,
	}, nil
}

func (r *loanRow) toDomain() (*domain.LoanApplication, error) {
	category := domain.LoanCategory(r.Category)
	details, err := domain.DecodeDetails(category, []byte(r.Details))
	if err != nil {
		return nil, err
	}
	return &domain.LoanApplication{
		LoanCore: domain.LoanCore{
			ID:                r.ID,
			LoanAccountNumber: r.LoanAccountNumber.String,
			BorrowerAccount:   r.BorrowerAccount,
			Category:          category,
			Principal:         r.Principal,
			TenureMonths:      r.TenureMonths,
			InterestRate:      r.InterestRate,
			CreditScore:       r.CreditScore,
			Status:            domain.LoanStatus(r.Status),
			Documents: domain.Documents{
				PAN:           r.PAN,
				IdentityProof: r.IdentityProof,
				IncomeProof:   r.IncomeProof,
			},
			AppliedAt:         r.AppliedAt,
			ApprovedAt:        r.ApprovedAt,
			ApprovedBy:        r.ApprovedBy,
			RejectedAt:        r.RejectedAt,
			RejectedBy:        r.RejectedBy,
			RejectionReason:   r.RejectionReason,
			ForeclosedAt:      r.ForeclosedAt,
			ForeclosureAmount: r.ForeclosureAmount,
			ClosedAt:          r.ClosedAt,
			Version:           r.Version,
			UpdatedAt:         r.UpdatedAt,
		},
		Details: details,
	}, nil
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.LoanApplication) error {
	row, err := toRow(loan)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES (:id, :loan_account_number, :borrower_account, :category, :principal, :tenure_months,
			:interest_rate, :credit_score, :status, :pan, :identity_proof, :income_proof, :details,
			:applied_at, :approved_at, :approved_by, :rejected_at, :rejected_by, :rejection_reason,
			:foreclosed_at, :foreclosure_amount, :closed_at, :version, :updated_at)
	`

	_, err = r.db.NamedExecContext(ctx, query, row)
	return err
}

func (r *loanRepository) GetByID(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var row loanRow
	if err := r.db.GetContext(ctx, &row, query, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.ErrLoanNotFound
		}
		return nil, err
	}

	return row.toDomain()
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.LoanApplication) error {
	return r.updateLoan(ctx, r.db, loan)
}

func (r *loanRepository) updateLoan(ctx context.Context, ext sqlx.ExtContext, loan *domain.LoanApplication) error {
	row, err := toRow(loan)
	if err != nil {
		return err
	}

	query := `
		UPDATE loans
		SET loan_account_number = :loan_account_number, principal = :principal, interest_rate = :interest_rate,
			credit_score = :credit_score, status = :status, details = :details,
			approved_at = :approved_at, approved_by = :approved_by,
			rejected_at = :rejected_at, rejected_by = :rejected_by, rejection_reason = :rejection_reason,
			foreclosed_at = :foreclosed_at, foreclosure_amount = :foreclosure_amount, closed_at = :closed_at,
			updated_at = :updated_at, version = version + 1
		WHERE id = :id AND version = :version
	`

	result, err := sqlx.NamedExecContext(ctx, ext, query, row)
	if err != nil {
		return err
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	loan.Version++
	return nil
}

func (r *loanRepository) SaveApproval(ctx context.Context, loan *domain.LoanApplication, schedule domain.Schedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	version := loan.Version
	if err := r.updateLoan(ctx, tx, loan); err != nil {
		return err
	}

	query := `
		INSERT INTO emi_schedule (` + entryColumns + `)
		VALUES (:id, :loan_id, :sequence, :due_date, :principal, :interest, :total, :remaining_principal,
			:status, :paid_at, :paid_from, :transaction_id, :balance_before, :balance_after, :created_at)
	`
	for _, entry := range schedule {
		if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
			loan.Version = version
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		loan.Version = version
		return err
	}
	return nil
}

func (r *loanRepository) GetSchedule(ctx context.Context, loanID string) (domain.Schedule, error) {
	query := `SELECT ` + entryColumns + ` FROM emi_schedule WHERE loan_id = $1 ORDER BY sequence`

	var schedule domain.Schedule
	if err := r.db.SelectContext(ctx, &schedule, query, loanID); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (r *loanRepository) GetEntry(ctx context.Context, entryID string) (*domain.EmiScheduleEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM emi_schedule WHERE id = $1`

	var entry domain.EmiScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.ErrEntryNotFound
		}
		return nil, err
	}

	return &entry, nil
}

func (r *loanRepository) SavePayment(ctx context.Context, entry *domain.EmiScheduleEntry, closed *domain.LoanApplication) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The loan row is locked before the entry, in the same order settlement
	// takes them, and its version moves so a settlement read earlier fails.
	version := -1
	if closed != nil {
		version = closed.Version
		if err := r.updateLoan(ctx, tx, closed); err != nil {
			return err
		}
	} else if err := touchActiveLoan(ctx, tx, entry.LoanID); err != nil {
		return err
	}

	query := `
		UPDATE emi_schedule
		SET status = :status, paid_at = :paid_at, paid_from = :paid_from, transaction_id = :transaction_id,
			balance_before = :balance_before, balance_after = :balance_after
		WHERE id = :id AND status IN ('pending', 'overdue')
	`
	result, err := tx.NamedExecContext(ctx, query, entry)
	if err == nil {
		err = expectOneRow(result)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil && version >= 0 {
		closed.Version = version
	}
	return err
}

func touchActiveLoan(ctx context.Context, tx *sqlx.Tx, loanID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE loans SET version = version + 1 WHERE id = $1 AND status = 'active'`, loanID)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (r *loanRepository) SaveSettlement(ctx context.Context, loan *domain.LoanApplication, skipped domain.Schedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	version := loan.Version
	if err := r.saveSettlement(ctx, tx, loan, skipped); err != nil {
		loan.Version = version
		return err
	}

	if err := tx.Commit(); err != nil {
		loan.Version = version
		return err
	}
	return nil
}

func (r *loanRepository) saveSettlement(ctx context.Context, tx *sqlx.Tx, loan *domain.LoanApplication, skipped domain.Schedule) error {
	if err := r.updateLoan(ctx, tx, loan); err != nil {
		return err
	}
	if len(skipped) == 0 {
		return nil
	}

	ids := make([]string, 0, len(skipped))
	for _, entry := range skipped {
		ids = append(ids, entry.ID)
	}

	query, args, err := sqlx.In(
		`UPDATE emi_schedule SET status = ? WHERE loan_id = ? AND status IN ('pending', 'overdue') AND id IN (?)`,
		string(domain.EntryStatusSkipped), loan.ID, ids,
	)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return err
	}

	// An entry paid since the quote was read must not be both paid and settled.
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("%w: skipped %d of %d open installments", customError.ErrConcurrentUpdate, n, len(ids))
	}
	return nil
}

func (r *loanRepository) ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM loans WHERE status = $1 ORDER BY applied_at`, string(status))
	return ids, err
}

func (r *loanRepository) MarkOverdue(ctx context.Context, loanID string, asOf time.Time) (int64, error) {
	query := `
		UPDATE emi_schedule
		SET status = 'overdue'
		WHERE loan_id = $1 AND status = 'pending' AND due_date < $2
	`

	result, err := r.db.ExecContext(ctx, query, loanID, truncateDay(asOf))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *loanRepository) ListDueBetween(ctx context.Context, from, to time.Time) (domain.Schedule, error) {
	query := `
		SELECT e.id, e.loan_id, e.sequence, e.due_date, e.principal, e.interest, e.total, e.remaining_principal,
			e.status, e.paid_at, e.paid_from, e.transaction_id, e.balance_before, e.balance_after, e.created_at
		FROM emi_schedule e
		JOIN loans l ON l.id = e.loan_id
		WHERE l.status = 'active' AND e.status = 'pending' AND e.due_date >= $1 AND e.due_date < $2
		ORDER BY e.due_date, e.loan_id
	`

	var schedule domain.Schedule
	if err := r.db.SelectContext(ctx, &schedule, query, from, to); err != nil {
		return nil, err
	}
	return schedule, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: %d rows affected", customError.ErrConcurrentUpdate, n)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
