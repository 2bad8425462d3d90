package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formacore/progression-api/internal/models"
)

// ContractRepository persists alternance contracts.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository constructs a ContractRepository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create inserts a new contract.
func (r *ContractRepository) Create(ctx context.Context, contract *models.AlternanceContract) error {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = now
	}
	contract.UpdatedAt = now
	const query = `INSERT INTO alternance_contracts (id, student_id, session_id, center_percentage, company_percentage,
        weekly_center_hours, weekly_company_hours, rhythm, start_date, end_date, status, created_at, updated_at)
        VALUES (:id, :student_id, :session_id, :center_percentage, :company_percentage,
        :weekly_center_hours, :weekly_company_hours, :rhythm, :start_date, :end_date, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, contract); err != nil {
		return fmt.Errorf("create contract: %w", err)
	}
	return nil
}

// FindByID fetches one contract, nil when absent.
func (r *ContractRepository) FindByID(ctx context.Context, id string) (*models.AlternanceContract, error) {
	const query = `SELECT id, student_id, session_id, center_percentage, company_percentage,
        weekly_center_hours, weekly_company_hours, rhythm, start_date, end_date, status, created_at, updated_at
        FROM alternance_contracts WHERE id = $1`
	var contract models.AlternanceContract
	if err := r.db.GetContext(ctx, &contract, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find contract: %w", err)
	}
	return &contract, nil
}

// Update writes the contract's mutable fields.
func (r *ContractRepository) Update(ctx context.Context, contract *models.AlternanceContract) error {
	contract.UpdatedAt = time.Now().UTC()
	const query = `UPDATE alternance_contracts SET center_percentage = :center_percentage, company_percentage = :company_percentage,
        weekly_center_hours = :weekly_center_hours, weekly_company_hours = :weekly_company_hours, rhythm = :rhythm,
        start_date = :start_date, end_date = :end_date, status = :status, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, contract); err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	return nil
}

// ListByStudent returns the student's contracts, newest first.
func (r *ContractRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AlternanceContract, error) {
	const query = `SELECT id, student_id, session_id, center_percentage, company_percentage,
        weekly_center_hours, weekly_company_hours, rhythm, start_date, end_date, status, created_at, updated_at
        FROM alternance_contracts WHERE student_id = $1 ORDER BY start_date DESC`
	var contracts []models.AlternanceContract
	if err := r.db.SelectContext(ctx, &contracts, query, studentID); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return contracts, nil
}
