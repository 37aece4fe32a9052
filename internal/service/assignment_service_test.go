package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/repository"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
)

type mockAssignmentRepo struct {
	mu          sync.Mutex
	assignments map[string]models.Assignment
	seq         int
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{assignments: make(map[string]models.Assignment)}
}

func (m *mockAssignmentRepo) CreateActive(ctx context.Context, assignment *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.ReportID == assignment.ReportID && a.Status.Active() {
			return repository.ErrActiveExists
		}
	}
	m.seq++
	if assignment.ID == "" {
		assignment.ID = "assign-" + string(rune('a'+m.seq-1))
	}
	assignment.Status = models.AssignmentStatusAssigned
	assignment.AssignedAt = time.Now().UTC()
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) FindActiveByReport(ctx context.Context, reportID string) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.ReportID == reportID && a.Status.Active() {
			found := a
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) FindLatestByReport(ctx context.Context, reportID string) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Assignment
	for _, a := range m.assignments {
		if a.ReportID != reportID {
			continue
		}
		found := a
		if latest == nil || found.AssignedAt.After(latest.AssignedAt) {
			latest = &found
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (m *mockAssignmentRepo) TransitionStatus(ctx context.Context, id string, from, to models.AssignmentStatus, completedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.CompletedAt = completedAt
	m.assignments[id] = a
	return true, nil
}

func (m *mockAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var details []models.AssignmentDetail
	for _, a := range m.assignments {
		if filter.OfficerID != "" && a.OfficerID != filter.OfficerID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		details = append(details, models.AssignmentDetail{Assignment: a})
	}
	return details, len(details), nil
}

func (m *mockAssignmentRepo) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assignments[id]; ok {
		return &models.AssignmentDetail{Assignment: a}, nil
	}
	return nil, sql.ErrNoRows
}

type mockReportRepo struct {
	mu      sync.Mutex
	reports map[string]models.Report
}

func newMockReportRepo(reports ...models.Report) *mockReportRepo {
	m := &mockReportRepo{reports: make(map[string]models.Report)}
	for _, r := range reports {
		m.reports[r.ID] = r
	}
	return m
}

func (m *mockReportRepo) FindByID(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportRepo) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		r.Status = status
		m.reports[id] = r
	}
	return nil
}

func (m *mockReportRepo) statusOf(id string) models.ReportStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[id].Status
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockNotifier struct {
	mu     sync.Mutex
	inputs []NotifyInput
}

func (m *mockNotifier) Notify(ctx context.Context, input NotifyInput) (*models.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	return &models.NotificationEvent{ID: "evt", RecipientID: input.RecipientID}, nil
}

func (m *mockNotifier) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, in := range m.inputs {
		out = append(out, in.RecipientID)
	}
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
	kinds  []string
}

func (m *mockPublisher) Publish(ctx context.Context, topic, kind string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	m.kinds = append(m.kinds, kind)
}

func (m *mockPublisher) publishedKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.kinds...)
}

func testDispatcher() models.Actor {
	return models.Actor{ID: "dispatcher-1", Role: models.RoleDispatcher}
}

func testAssignmentFixtures() (*mockAssignmentRepo, *mockReportRepo, *mockUserReader, *mockNotifier, *mockPublisher, *AssignmentService) {
	repo := newMockAssignmentRepo()
	reports := newMockReportRepo(models.Report{
		ID:         "report-1",
		ReporterID: "civ-1",
		Title:      "Break-in on 5th",
		Status:     models.ReportStatusSubmitted,
		Priority:   models.PriorityHigh,
	})
	users := &mockUserReader{users: map[string]*models.User{
		"officer-1": {ID: "officer-1", Role: models.RoleOfficer, FullName: "Pat Doyle"},
		"officer-2": {ID: "officer-2", Role: models.RoleOfficer, FullName: "Sam Reyes"},
		"civ-1":     {ID: "civ-1", Role: models.RoleCivilian},
	}}
	notify := &mockNotifier{}
	publisher := &mockPublisher{}
	svc := NewAssignmentService(repo, reports, users, notify, publisher, nil, nil, nil)
	return repo, reports, users, notify, publisher, svc
}

func TestAssignCreatesAssignmentAndMirrorsReportStatus(t *testing.T) {
	_, reports, _, notify, publisher, svc := testAssignmentFixtures()

	detail, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, models.AssignmentStatusAssigned, detail.Status)
	assert.Equal(t, models.ReportStatusAssigned, reports.statusOf("report-1"))
	assert.ElementsMatch(t, []string{"officer-1", "civ-1"}, notify.recipients())
	assert.Contains(t, publisher.publishedKinds(), "assignment_created")
}

func TestAssignRejectsNonOfficer(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	_, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "civ-1"}, testDispatcher())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAssignSecondActiveAssignmentConflicts(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	first, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-2"}, testDispatcher())
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	winner, ok := appErr.Detail.(*models.Assignment)
	require.True(t, ok, "conflict should carry the winning assignment")
	assert.Equal(t, first.ID, winner.ID)
}

func TestAssignConcurrentRacersSingleWinner(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		officer := "officer-1"
		if i%2 == 1 {
			officer = "officer-2"
		}
		go func(officerID string) {
			defer wg.Done()
			_, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: officerID}, testDispatcher())
			results <- err
		}(officer)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
		conflicts++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)
}

func TestUpdateStatusWalksStateMachine(t *testing.T) {
	_, reports, _, _, _, svc := testAssignmentFixtures()

	detail, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)
	officer := models.Actor{ID: "officer-1", Role: models.RoleOfficer}

	detail, err = svc.UpdateStatus(context.Background(), detail.ID, models.AssignmentStatusInProgress, officer)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusInProgress, detail.Status)
	assert.Equal(t, models.ReportStatusInProgress, reports.statusOf("report-1"))

	detail, err = svc.UpdateStatus(context.Background(), detail.ID, models.AssignmentStatusCompleted, officer)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusCompleted, detail.Status)
	assert.NotNil(t, detail.CompletedAt)
	assert.Equal(t, models.ReportStatusResolved, reports.statusOf("report-1"))
}

func TestUpdateStatusRejectsSkippedTransition(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	detail, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), detail.ID, models.AssignmentStatusCompleted, models.Actor{ID: "officer-1", Role: models.RoleOfficer})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
}

func TestUpdateStatusRequiresAssignedOfficer(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	detail, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), detail.ID, models.AssignmentStatusInProgress, models.Actor{ID: "officer-2", Role: models.RoleOfficer})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestUnassignCancelsActiveAndResetsReport(t *testing.T) {
	_, reports, _, _, _, svc := testAssignmentFixtures()

	_, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)

	detail, err := svc.Unassign(context.Background(), "report-1", testDispatcher())
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, models.AssignmentStatusCancelled, detail.Status)
	assert.Equal(t, models.ReportStatusSubmitted, reports.statusOf("report-1"))
}

func TestUnassignWithoutActiveAssignmentIsNoOp(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	detail, err := svc.Unassign(context.Background(), "report-1", testDispatcher())
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestUnassignTwiceReturnsCancelledAssignment(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	_, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)

	first, err := svc.Unassign(context.Background(), "report-1", testDispatcher())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Unassign(context.Background(), "report-1", testDispatcher())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.AssignmentStatusCancelled, second.Status)
}

func TestReassignAfterUnassignSucceeds(t *testing.T) {
	_, _, _, _, _, svc := testAssignmentFixtures()

	_, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-1"}, testDispatcher())
	require.NoError(t, err)
	_, err = svc.Unassign(context.Background(), "report-1", testDispatcher())
	require.NoError(t, err)

	detail, err := svc.Assign(context.Background(), AssignRequest{ReportID: "report-1", OfficerID: "officer-2"}, testDispatcher())
	require.NoError(t, err)
	assert.Equal(t, "officer-2", detail.OfficerID)
}
