package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/pkg/config"
	appErrors "github.com/formacore/progression-api/pkg/errors"
)

type contractRepoStub struct {
	contracts map[string]models.AlternanceContract
}

func (s *contractRepoStub) Create(ctx context.Context, contract *models.AlternanceContract) error {
	if s.contracts == nil {
		s.contracts = make(map[string]models.AlternanceContract)
	}
	s.contracts[contract.ID] = *contract
	return nil
}

func (s *contractRepoStub) FindByID(ctx context.Context, id string) (*models.AlternanceContract, error) {
	contract, ok := s.contracts[id]
	if !ok {
		return nil, nil
	}
	return &contract, nil
}

func (s *contractRepoStub) Update(ctx context.Context, contract *models.AlternanceContract) error {
	s.contracts[contract.ID] = *contract
	return nil
}

func (s *contractRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.AlternanceContract, error) {
	var out []models.AlternanceContract
	for _, c := range s.contracts {
		if c.StudentID == studentID {
			out = append(out, c)
		}
	}
	return out, nil
}

type calendarRepoStub struct {
	entries []models.CalendarEntry
}

func (s *calendarRepoStub) Insert(ctx context.Context, entry *models.CalendarEntry) (bool, error) {
	for _, e := range s.entries {
		if e.StudentID == entry.StudentID && e.Year == entry.Year && e.Week == entry.Week {
			return false, nil
		}
	}
	s.entries = append(s.entries, *entry)
	return true, nil
}

func (s *calendarRepoStub) ListByContract(ctx context.Context, contractID string) ([]models.CalendarEntry, error) {
	var out []models.CalendarEntry
	for _, e := range s.entries {
		if e.ContractID == contractID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *calendarRepoStub) ListByStudentRange(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error) {
	fromYear, fromWeek := from.ISOWeek()
	toYear, toWeek := to.ISOWeek()
	lo, hi := fromYear*100+fromWeek, toYear*100+toWeek
	var out []models.CalendarEntry
	for _, e := range s.entries {
		key := e.Year*100 + e.Week
		if e.StudentID == studentID && key >= lo && key <= hi {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *calendarRepoStub) FindByID(ctx context.Context, id string) (*models.CalendarEntry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *calendarRepoStub) DeleteUnconfirmedFrom(ctx context.Context, contractID string, year, week int) error {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.ContractID == contractID && !e.Confirmed && !weekBefore(e.Year, e.Week, year, week) {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return nil
}

func (s *calendarRepoStub) SetConfirmed(ctx context.Context, id, actor string) (*models.CalendarEntry, error) {
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Confirmed = true
			s.entries[i].ConfirmedBy = &actor
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, errors.New("entry not found")
}

func newAlternanceFixture() (*AlternanceService, *contractRepoStub, *calendarRepoStub) {
	contracts := &contractRepoStub{contracts: make(map[string]models.AlternanceContract)}
	calendar := &calendarRepoStub{}
	svc := NewAlternanceService(contracts, calendar, config.AlternanceConfig{DriftTolerancePct: 5, DefaultWeekHours: 35}, nil)
	return svc, contracts, calendar
}

// ten ISO weeks, 2026-W02 through 2026-W11
func tenWeekContract() models.AlternanceContract {
	return models.AlternanceContract{
		StudentID:         "s1",
		SessionID:         "sess-2026",
		CenterPercentage:  60,
		CompanyPercentage: 40,
		StartDate:         time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateDraftRejectsInvertedDates(t *testing.T) {
	svc, _, _ := newAlternanceFixture()
	contract := tenWeekContract()
	contract.EndDate = contract.StartDate
	_, err := svc.CreateDraft(context.Background(), contract)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateGeneratesBalancedCalendar(t *testing.T) {
	svc, _, calendar := newAlternanceFixture()

	draft, err := svc.CreateDraft(context.Background(), tenWeekContract())
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, draft.Status)

	report, err := svc.Validate(context.Background(), draft.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, report.WeeksGenerated)
	assert.Equal(t, 6, report.CenterWeeks, "a 60/40 split over ten equal weeks lands on 6 center weeks")
	assert.Equal(t, 4, report.CompanyWeeks)
	assert.Empty(t, report.Conflicts)
	assert.Nil(t, report.Drift, "6/4 at equal hours is exactly 60 percent")

	seen := make(map[[2]int]bool)
	for _, e := range calendar.entries {
		require.False(t, seen[[2]int{e.Year, e.Week}], "week %d/%d allocated twice", e.Year, e.Week)
		seen[[2]int{e.Year, e.Week}] = true
	}
}

func TestValidateRejectsInconsistentSplit(t *testing.T) {
	svc, _, _ := newAlternanceFixture()
	contract := tenWeekContract()
	contract.CenterPercentage = 70

	draft, err := svc.CreateDraft(context.Background(), contract)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), draft.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidContract))
}

func TestValidateFollowsRhythm(t *testing.T) {
	svc, _, _ := newAlternanceFixture()
	contract := tenWeekContract()
	contract.Rhythm = strPtr("3/1")
	contract.CenterPercentage = 75
	contract.CompanyPercentage = 25
	contract.EndDate = time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC) // eight weeks

	draft, err := svc.CreateDraft(context.Background(), contract)
	require.NoError(t, err)
	report, err := svc.Validate(context.Background(), draft.ID)
	require.NoError(t, err)

	assert.Equal(t, 8, report.WeeksGenerated)
	assert.Equal(t, 6, report.CenterWeeks)
	assert.Equal(t, 2, report.CompanyWeeks)
}

func TestTransitionRejectsSkippedStates(t *testing.T) {
	svc, _, _ := newAlternanceFixture()
	draft, err := svc.CreateDraft(context.Background(), tenWeekContract())
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), draft.ID, models.ContractStatusActive)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition))

	_, err = svc.Validate(context.Background(), draft.ID)
	require.NoError(t, err)
	active, err := svc.Transition(context.Background(), draft.ID, models.ContractStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusActive, active.Status)
}

func TestValidateReportsWeekConflicts(t *testing.T) {
	svc, _, calendar := newAlternanceFixture()

	// 2026-W03 is already taken by another contract for the same student
	calendar.entries = append(calendar.entries, models.CalendarEntry{
		ID: "other", StudentID: "s1", ContractID: "other-contract",
		Year: 2026, Week: 3, Location: models.LocationCompany,
	})

	draft, err := svc.CreateDraft(context.Background(), tenWeekContract())
	require.NoError(t, err)
	report, err := svc.Validate(context.Background(), draft.ID)
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1, "a blocked week must not abort the remaining weeks")
	assert.Equal(t, 3, report.Conflicts[0].Week)
	assert.Equal(t, 2026, report.Conflicts[0].Year)
	assert.Equal(t, 9, report.WeeksGenerated)
}

func TestAmendKeepsConfirmedAndPastWeeks(t *testing.T) {
	svc, _, calendar := newAlternanceFixture()

	now := time.Now().UTC()
	contract := tenWeekContract()
	contract.StartDate = mondayOf(now.AddDate(0, 0, -21))
	contract.EndDate = contract.StartDate.AddDate(0, 0, 7*10-3)

	draft, err := svc.CreateDraft(context.Background(), contract)
	require.NoError(t, err)
	report, err := svc.Validate(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, 10, report.WeeksGenerated)

	// confirm the final week so the amendment cannot touch it
	last := calendar.entries[len(calendar.entries)-1]
	confirmed, err := svc.ConfirmEntry(context.Background(), last.ID, "mentor-7")
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)

	amended, err := svc.Amend(context.Background(), draft.ID, AmendmentRequest{
		CenterPercentage:  floatPtr(50),
		CompanyPercentage: floatPtr(50),
	})
	require.NoError(t, err)

	// three elapsed weeks plus the confirmed one survive untouched
	assert.Equal(t, 4, amended.WeeksKept)
	assert.Equal(t, 6, amended.WeeksGenerated)

	var found bool
	for _, e := range calendar.entries {
		if e.ID == last.ID {
			found = true
			assert.Equal(t, last.Location, e.Location)
		}
	}
	assert.True(t, found, "confirmed entries are immutable history")

	seen := make(map[[2]int]bool)
	for _, e := range calendar.entries {
		require.False(t, seen[[2]int{e.Year, e.Week}])
		seen[[2]int{e.Year, e.Week}] = true
	}
}

func TestAmendRejectsDraft(t *testing.T) {
	svc, _, _ := newAlternanceFixture()
	draft, err := svc.CreateDraft(context.Background(), tenWeekContract())
	require.NoError(t, err)

	_, err = svc.Amend(context.Background(), draft.ID, AmendmentRequest{EndDate: &draft.EndDate})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition))
}

func TestConfirmEntryTwice(t *testing.T) {
	svc, _, calendar := newAlternanceFixture()
	draft, err := svc.CreateDraft(context.Background(), tenWeekContract())
	require.NoError(t, err)
	_, err = svc.Validate(context.Background(), draft.ID)
	require.NoError(t, err)

	entry := calendar.entries[0]
	_, err = svc.ConfirmEntry(context.Background(), entry.ID, "teacher-1")
	require.NoError(t, err)

	_, err = svc.ConfirmEntry(context.Background(), entry.ID, "teacher-2")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrEntryConfirmed))
}

func TestConfirmEntryNotFound(t *testing.T) {
	svc, _, _ := newAlternanceFixture()
	_, err := svc.ConfirmEntry(context.Background(), "ghost", "teacher-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestParseRhythm(t *testing.T) {
	center, company, err := parseRhythm("3/1")
	require.NoError(t, err)
	assert.Equal(t, 3, center)
	assert.Equal(t, 1, company)

	for _, raw := range []string{"0/0", "abc", "1/2/3", "-1/2", ""} {
		_, _, err := parseRhythm(raw)
		require.Error(t, err, "rhythm %q should be rejected", raw)
	}
}

func TestDriftWarningTolerance(t *testing.T) {
	contract := tenWeekContract()
	contract.ID = "ct-1"

	balanced := []models.CalendarEntry{
		{CenterHours: 35}, {CenterHours: 35}, {CenterHours: 35},
		{CompanyHours: 35}, {CompanyHours: 35},
	}
	assert.Nil(t, driftWarning(&contract, balanced, 5), "60 percent scheduled against 60 declared is clean")

	drifted := []models.CalendarEntry{
		{CenterHours: 35}, {CenterHours: 35},
		{CompanyHours: 35}, {CompanyHours: 35},
	}
	warning := driftWarning(&contract, drifted, 5)
	require.NotNil(t, warning)
	assert.InDelta(t, 10, warning.DeviationPct, 1e-9)
	assert.InDelta(t, 50, warning.ScheduledCenter, 1e-9)

	assert.Nil(t, driftWarning(&contract, nil, 5), "an empty calendar has nothing to drift")
}

func TestDriftForStudentWorstContract(t *testing.T) {
	svc, contracts, calendar := newAlternanceFixture()

	contracts.contracts["ct-1"] = models.AlternanceContract{
		ID: "ct-1", StudentID: "s1", Status: models.ContractStatusActive,
		CenterPercentage: 60, CompanyPercentage: 40,
	}
	calendar.entries = []models.CalendarEntry{
		{ID: "w1", StudentID: "s1", ContractID: "ct-1", Year: 2026, Week: 2, CenterHours: 35},
		{ID: "w2", StudentID: "s1", ContractID: "ct-1", Year: 2026, Week: 3, CompanyHours: 35},
	}

	drift, err := svc.DriftForStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.InDelta(t, 10, drift, 1e-9)

	drift, err = svc.DriftForStudent(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Zero(t, drift)
}
