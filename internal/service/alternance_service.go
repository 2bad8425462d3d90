package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/pkg/config"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type contractRepository interface {
	Create(ctx context.Context, contract *models.AlternanceContract) error
	FindByID(ctx context.Context, id string) (*models.AlternanceContract, error)
	Update(ctx context.Context, contract *models.AlternanceContract) error
	ListByStudent(ctx context.Context, studentID string) ([]models.AlternanceContract, error)
}

type calendarRepository interface {
	// Insert writes one entry. Returns false when an entry for the same
	// (student, week, year) already exists.
	Insert(ctx context.Context, entry *models.CalendarEntry) (bool, error)
	ListByContract(ctx context.Context, contractID string) ([]models.CalendarEntry, error)
	ListByStudentRange(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error)
	FindByID(ctx context.Context, id string) (*models.CalendarEntry, error)
	DeleteUnconfirmedFrom(ctx context.Context, contractID string, year, week int) error
	SetConfirmed(ctx context.Context, id, actor string) (*models.CalendarEntry, error)
}

// AlternanceService owns the contract state machine and weekly calendar
// generation. All calendar mutations for one contract run under that
// contract's lock so the (student, week, year) uniqueness invariant is
// enforced by a single writer.
type AlternanceService struct {
	contracts contractRepository
	calendar  calendarRepository
	cfg       config.AlternanceConfig
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAlternanceService constructs the scheduler.
func NewAlternanceService(contracts contractRepository, calendar calendarRepository, cfg config.AlternanceConfig, logger *zap.Logger) *AlternanceService {
	if cfg.DriftTolerancePct <= 0 {
		cfg.DriftTolerancePct = 5
	}
	if cfg.DefaultWeekHours <= 0 {
		cfg.DefaultWeekHours = 35
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlternanceService{
		contracts: contracts,
		calendar:  calendar,
		cfg:       cfg,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *AlternanceService) contractLock(contractID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[contractID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[contractID] = lock
	}
	return lock
}

// CreateDraft stores a new draft contract. Percentage consistency is only
// enforced at validation so drafts can be saved incomplete.
func (s *AlternanceService) CreateDraft(ctx context.Context, contract models.AlternanceContract) (*models.AlternanceContract, error) {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	if !contract.EndDate.After(contract.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	contract.Status = models.ContractStatusDraft
	now := time.Now().UTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now
	if err := s.contracts.Create(ctx, &contract); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store contract")
	}
	return &contract, nil
}

// Validate transitions Draft -> Validated and generates the full calendar.
// An inconsistent percentage split blocks the transition.
func (s *AlternanceService) Validate(ctx context.Context, contractID string) (*models.GenerationReport, error) {
	lock := s.contractLock(contractID)
	lock.Lock()
	defer lock.Unlock()

	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.Status.CanTransitionTo(models.ContractStatusValidated) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot validate a contract in status %s", contract.Status))
	}
	if err := checkContractConsistency(contract); err != nil {
		return nil, err
	}

	contract.Status = models.ContractStatusValidated
	contract.UpdatedAt = time.Now().UTC()
	if err := s.contracts.Update(ctx, contract); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update contract")
	}

	return s.generate(ctx, contract, contract.StartDate)
}

// Transition moves the contract along Active/Completed/Terminated.
func (s *AlternanceService) Transition(ctx context.Context, contractID string, next models.ContractStatus) (*models.AlternanceContract, error) {
	lock := s.contractLock(contractID)
	lock.Lock()
	defer lock.Unlock()

	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown contract status %q", next))
	}
	if !contract.Status.CanTransitionTo(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("transition %s -> %s not allowed", contract.Status, next))
	}
	contract.Status = next
	contract.UpdatedAt = time.Now().UTC()
	if err := s.contracts.Update(ctx, contract); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update contract")
	}
	return contract, nil
}

// AmendmentRequest carries the fields an amendment may change.
type AmendmentRequest struct {
	EndDate           *time.Time
	CenterPercentage  *float64
	CompanyPercentage *float64
	Rhythm            *string
}

// Amend applies a contract amendment and regenerates only future,
// unconfirmed weeks. Confirmed weeks are immutable history and keep seeding
// the cumulative hour totals.
func (s *AlternanceService) Amend(ctx context.Context, contractID string, req AmendmentRequest) (*models.GenerationReport, error) {
	lock := s.contractLock(contractID)
	lock.Lock()
	defer lock.Unlock()

	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusValidated && contract.Status != models.ContractStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot amend a contract in status %s", contract.Status))
	}

	if req.EndDate != nil {
		contract.EndDate = *req.EndDate
	}
	if req.CenterPercentage != nil {
		contract.CenterPercentage = *req.CenterPercentage
	}
	if req.CompanyPercentage != nil {
		contract.CompanyPercentage = *req.CompanyPercentage
	}
	if req.Rhythm != nil {
		contract.Rhythm = req.Rhythm
	}
	if err := checkContractConsistency(contract); err != nil {
		return nil, err
	}
	contract.UpdatedAt = time.Now().UTC()
	if err := s.contracts.Update(ctx, contract); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update contract")
	}

	return s.generate(ctx, contract, time.Now().UTC())
}

// Calendar returns a student's entries within a date range.
func (s *AlternanceService) Calendar(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error) {
	entries, err := s.calendar.ListByStudentRange(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
	}
	return entries, nil
}

// ConfirmEntry marks one week as confirmed by a mentor or teacher. A
// confirmed entry can never be regenerated or re-confirmed.
func (s *AlternanceService) ConfirmEntry(ctx context.Context, entryID, actor string) (*models.CalendarEntry, error) {
	entry, err := s.calendar.FindByID(ctx, entryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar entry")
	}
	if entry == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "calendar entry not found")
	}
	if entry.Confirmed {
		return nil, appErrors.Clone(appErrors.ErrEntryConfirmed, "entry is already confirmed")
	}
	confirmed, err := s.calendar.SetConfirmed(ctx, entryID, actor)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm entry")
	}
	return confirmed, nil
}

// DriftForStudent reports the worst absolute center-share deviation across
// the student's validated or active contracts, in percentage points. Feeds
// the alternance risk signal.
func (s *AlternanceService) DriftForStudent(ctx context.Context, studentID string) (float64, error) {
	contracts, err := s.contracts.ListByStudent(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contracts")
	}
	worst := 0.0
	for i := range contracts {
		contract := contracts[i]
		if contract.Status != models.ContractStatusValidated && contract.Status != models.ContractStatusActive {
			continue
		}
		entries, err := s.calendar.ListByContract(ctx, contract.ID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
		}
		if warning := driftWarning(&contract, entries, s.cfg.DriftTolerancePct); warning != nil {
			if warning.DeviationPct > worst {
				worst = warning.DeviationPct
			}
		}
	}
	return worst, nil
}

func (s *AlternanceService) loadContract(ctx context.Context, contractID string) (*models.AlternanceContract, error) {
	contract, err := s.contracts.FindByID(ctx, contractID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	if contract == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
	}
	return contract, nil
}

// generate rebuilds the contract's calendar from "from" onward. Confirmed
// and past entries are kept and seed the cumulative totals; one week's
// conflict never aborts the remaining weeks.
func (s *AlternanceService) generate(ctx context.Context, contract *models.AlternanceContract, from time.Time) (*models.GenerationReport, error) {
	existing, err := s.calendar.ListByContract(ctx, contract.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
	}

	fromYear, fromWeek := from.ISOWeek()
	if err := s.calendar.DeleteUnconfirmedFrom(ctx, contract.ID, fromYear, fromWeek); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear regenerable weeks")
	}

	kept := make([]models.CalendarEntry, 0, len(existing))
	keptKeys := make(map[[2]int]struct{})
	for _, entry := range existing {
		if weekBefore(entry.Year, entry.Week, fromYear, fromWeek) || entry.Confirmed {
			kept = append(kept, entry)
			keptKeys[[2]int{entry.Year, entry.Week}] = struct{}{}
		}
	}

	plan := planWeeks(contract, s.cfg.DefaultWeekHours, kept, keptKeys)

	report := &models.GenerationReport{ContractID: contract.ID, WeeksKept: len(kept)}
	entries := append([]models.CalendarEntry{}, kept...)
	for _, entry := range plan {
		inserted, err := s.calendar.Insert(ctx, &entry)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store calendar entry")
		}
		if !inserted {
			report.Conflicts = append(report.Conflicts, models.WeekConflict{
				Week:   entry.Week,
				Year:   entry.Year,
				Reason: appErrors.ErrSchedulingConflict.Message,
			})
			continue
		}
		report.WeeksGenerated++
		entries = append(entries, entry)
	}

	for _, entry := range entries {
		switch entry.Location {
		case models.LocationCenter:
			report.CenterWeeks++
		case models.LocationCompany:
			report.CompanyWeeks++
		}
	}
	report.Drift = driftWarning(contract, entries, s.cfg.DriftTolerancePct)
	if report.Drift != nil {
		s.logger.Warn("schedule drift outside tolerance",
			zap.String("contract_id", contract.ID),
			zap.Float64("deviation_pct", report.Drift.DeviationPct))
	}
	return report, nil
}

// checkContractConsistency enforces the percentage-sum invariant.
func checkContractConsistency(contract *models.AlternanceContract) error {
	if math.Abs(contract.CenterPercentage+contract.CompanyPercentage-100) > 1e-9 {
		return appErrors.Clone(appErrors.ErrInvalidContract,
			fmt.Sprintf("center (%v%%) and company (%v%%) percentages must sum to 100",
				contract.CenterPercentage, contract.CompanyPercentage))
	}
	if contract.CenterPercentage < 0 || contract.CompanyPercentage < 0 {
		return appErrors.Clone(appErrors.ErrInvalidContract, "percentages must be non-negative")
	}
	if contract.Rhythm != nil {
		if _, _, err := parseRhythm(*contract.Rhythm); err != nil {
			return err
		}
	}
	return nil
}

// parseRhythm reads "N/M": N center weeks then M company weeks, repeating.
func parseRhythm(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidContract, "rhythm must be of the form \"N/M\"")
	}
	center, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || center < 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidContract, "rhythm center weeks must be a non-negative integer")
	}
	company, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || company < 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidContract, "rhythm company weeks must be a non-negative integer")
	}
	if center+company == 0 {
		return 0, 0, appErrors.Clone(appErrors.ErrInvalidContract, "rhythm cannot be 0/0")
	}
	return center, company, nil
}

// planWeeks assigns every missing contract week to a location. With a
// rhythm, the repeating pattern continues from the week's position in the
// contract. Without one, a deficit bucket keeps the running hour split as
// close as possible to the declared percentages: each week goes to
// whichever side is furthest below its target share.
func planWeeks(contract *models.AlternanceContract, defaultWeekHours float64, kept []models.CalendarEntry, keptKeys map[[2]int]struct{}) []models.CalendarEntry {
	centerHours := contract.WeeklyCenterHours
	if centerHours <= 0 {
		centerHours = defaultWeekHours
	}
	companyHours := contract.WeeklyCompanyHours
	if companyHours <= 0 {
		companyHours = defaultWeekHours
	}

	cumCenter, cumCompany := 0.0, 0.0
	for _, entry := range kept {
		cumCenter += entry.CenterHours
		cumCompany += entry.CompanyHours
	}

	var rhythmCenter, rhythmCompany int
	useRhythm := false
	if contract.Rhythm != nil {
		if c, e, err := parseRhythm(*contract.Rhythm); err == nil {
			rhythmCenter, rhythmCompany, useRhythm = c, e, true
		}
	}

	now := time.Now().UTC()
	var plan []models.CalendarEntry
	weekIndex := -1
	for monday := mondayOf(contract.StartDate); !monday.After(contract.EndDate); monday = monday.AddDate(0, 0, 7) {
		weekIndex++
		year, week := monday.ISOWeek()
		if _, taken := keptKeys[[2]int{year, week}]; taken {
			continue
		}

		var location models.WeekLocation
		if useRhythm {
			if weekIndex%(rhythmCenter+rhythmCompany) < rhythmCenter {
				location = models.LocationCenter
			} else {
				location = models.LocationCompany
			}
		} else {
			location = bucketAssign(cumCenter, cumCompany, contract.CenterPercentage)
		}

		entry := models.CalendarEntry{
			ID:         uuid.NewString(),
			StudentID:  contract.StudentID,
			ContractID: contract.ID,
			Week:       week,
			Year:       year,
			Location:   location,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if location == models.LocationCenter {
			entry.CenterHours = centerHours
			cumCenter += centerHours
		} else {
			entry.CompanyHours = companyHours
			cumCompany += companyHours
		}
		plan = append(plan, entry)
	}
	return plan
}

// bucketAssign picks the side furthest below its target share of the
// cumulative hours so deviation from the declared split stays minimal.
func bucketAssign(cumCenter, cumCompany, centerPct float64) models.WeekLocation {
	total := cumCenter + cumCompany
	if total == 0 {
		if centerPct > 0 {
			return models.LocationCenter
		}
		return models.LocationCompany
	}
	if cumCenter/total*100 < centerPct {
		return models.LocationCenter
	}
	return models.LocationCompany
}

// driftWarning compares scheduled against declared center share.
func driftWarning(contract *models.AlternanceContract, entries []models.CalendarEntry, tolerancePct float64) *models.DriftWarning {
	var center, total float64
	for _, entry := range entries {
		center += entry.CenterHours
		total += entry.CenterHours + entry.CompanyHours
	}
	if total == 0 {
		return nil
	}
	scheduled := center / total * 100
	deviation := math.Abs(scheduled - contract.CenterPercentage)
	if deviation <= tolerancePct {
		return nil
	}
	return &models.DriftWarning{
		ContractID:      contract.ID,
		DeclaredCenter:  contract.CenterPercentage,
		ScheduledCenter: scheduled,
		DeviationPct:    deviation,
		TolerancePct:    tolerancePct,
	}
}

func mondayOf(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func weekBefore(year, week, refYear, refWeek int) bool {
	if year != refYear {
		return year < refYear
	}
	return week < refWeek
}
