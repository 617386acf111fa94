package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"haruup-service/internal/models"
	"haruup-service/internal/repository/postgres"
)

type memoryProgressStore struct {
	mu       sync.Mutex
	levels   []models.Level
	progress map[uuid.UUID]models.MemberCharacter
	missions map[uuid.UUID]models.MemberMission
}

func newMemoryProgressStore() *memoryProgressStore {
	return &memoryProgressStore{
		levels: []models.Level{
			{ID: 1, LevelNumber: 1, RequiredExp: 0, Name: "새싹"},
			{ID: 2, LevelNumber: 2, RequiredExp: 100, Name: "떡잎"},
			{ID: 3, LevelNumber: 3, RequiredExp: 300, Name: "나무"},
		},
		progress: map[uuid.UUID]models.MemberCharacter{},
		missions: map[uuid.UUID]models.MemberMission{},
	}
}

func (m *memoryProgressStore) GetProgress(_ context.Context, memberID uuid.UUID) (*models.MemberCharacter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[memberID]
	if !ok {
		return nil, fmt.Errorf("member character %s: %w", memberID, postgres.ErrRecordNotFound)
	}
	return &p, nil
}

func (m *memoryProgressStore) CreateProgress(_ context.Context, memberID uuid.UUID) (*models.MemberCharacter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.levels) == 0 {
		return nil, postgres.ErrLevelsMissing
	}
	if p, ok := m.progress[memberID]; ok {
		return &p, nil
	}
	p := models.MemberCharacter{MemberID: memberID, LevelID: m.levels[0].ID}
	m.progress[memberID] = p
	return &p, nil
}

func (m *memoryProgressStore) ListLevels(context.Context) ([]models.Level, error) {
	return m.levels, nil
}

func (m *memoryProgressStore) WithMissionProgress(_ context.Context, memberID, memberMissionID uuid.UUID,
	fn func(*models.MemberMission, *models.MemberCharacter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mission, ok := m.missions[memberMissionID]
	if !ok {
		return fmt.Errorf("member mission %s: %w", memberMissionID, postgres.ErrRecordNotFound)
	}
	progress, ok := m.progress[memberID]
	if !ok {
		return fmt.Errorf("member character %s: %w", memberID, postgres.ErrRecordNotFound)
	}
	if err := fn(&mission, &progress); err != nil {
		return err
	}
	m.missions[memberMissionID] = mission
	m.progress[memberID] = progress
	return nil
}

func (m *memoryProgressStore) addMission(memberID uuid.UUID, exp int64) uuid.UUID {
	id := uuid.New()
	m.missions[id] = models.MemberMission{
		ID: id, MemberID: memberID, MissionID: 1, ExpReward: exp,
		Status: models.MissionStatusSelected, SelectedAt: time.Now(),
	}
	return id
}

type memoryHistory struct {
	events []models.CompletionEvent
	err    error
}

func (h *memoryHistory) AppendCompletion(_ context.Context, ev models.CompletionEvent) error {
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, ev)
	return nil
}

func (h *memoryHistory) ListCompletions(_ context.Context, _ uuid.UUID, limit int) ([]models.CompletionEvent, error) {
	if len(h.events) > limit {
		return h.events[:limit], nil
	}
	return h.events, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, event, _ string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

var kst = time.FixedZone("KST", 9*60*60)

func newTestCharacterService(store *memoryProgressStore, history HistoryStore, pub EventPublisher, clock *fakeClock) *CharacterService {
	return NewCharacterService(store, history, pub, kst, zap.NewNop()).WithClock(clock.Now)
}

func TestCompleteMission_ExtendsStreakAndLevelsUp(t *testing.T) {
	store := newMemoryProgressStore()
	member := uuid.New()
	last := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	store.progress[member] = models.MemberCharacter{
		MemberID: member, LevelID: 1, TotalExp: 90, CurrentExp: 90,
		CurrentStreakDays: 5, LongestStreakDays: 5, LastMissionDate: &last,
	}
	mission := store.addMission(member, 30)

	history := &memoryHistory{}
	pub := &recordingPublisher{}
	// 2025-01-11 08:00 KST
	clock := &fakeClock{t: time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)}
	svc := newTestCharacterService(store, history, pub, clock)

	res, err := svc.CompleteMission(context.Background(), member, mission)
	require.NoError(t, err)
	require.True(t, res.LeveledUp)
	require.Equal(t, int64(30), res.ExpGained)
	require.Equal(t, int64(2), res.Level.ID)

	p := res.Progress
	require.Equal(t, int64(120), p.TotalExp)
	require.Equal(t, int64(20), p.CurrentExp)
	require.Equal(t, 6, p.CurrentStreakDays)
	require.Equal(t, 6, p.LongestStreakDays)
	require.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), *p.LastMissionDate)
	require.Equal(t, 1, p.CompletedMissions)

	require.Equal(t, models.MissionStatusCompleted, store.missions[mission].Status)
	require.NotNil(t, store.missions[mission].CompletedAt)

	require.Len(t, history.events, 1)
	require.Equal(t, mission, history.events[0].MemberMissionID)
	require.Equal(t, []string{EventMissionCompleted, EventLevelUp}, pub.events)
}

func TestCompleteMission_SameDayKeepsStreak(t *testing.T) {
	store := newMemoryProgressStore()
	member := uuid.New()
	today := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)
	store.progress[member] = models.MemberCharacter{
		MemberID: member, LevelID: 1, TotalExp: 10, CurrentExp: 10,
		CurrentStreakDays: 3, LongestStreakDays: 4, LastMissionDate: &today,
	}
	mission := store.addMission(member, 10)
	clock := &fakeClock{t: time.Date(2025, 1, 11, 20, 0, 0, 0, kst)}
	pub := &recordingPublisher{}

	res, err := newTestCharacterService(store, nil, pub, clock).CompleteMission(context.Background(), member, mission)
	require.NoError(t, err)
	require.False(t, res.LeveledUp)
	require.Equal(t, 3, res.Progress.CurrentStreakDays)
	require.Equal(t, 4, res.Progress.LongestStreakDays)
	require.Equal(t, []string{EventMissionCompleted}, pub.events)
}

func TestCompleteMission_Rejections(t *testing.T) {
	store := newMemoryProgressStore()
	member, other := uuid.New(), uuid.New()
	store.progress[member] = models.MemberCharacter{MemberID: member, LevelID: 1}
	store.progress[other] = models.MemberCharacter{MemberID: other, LevelID: 1}
	clock := &fakeClock{t: time.Date(2025, 1, 11, 12, 0, 0, 0, kst)}
	svc := newTestCharacterService(store, nil, nil, clock)
	ctx := context.Background()

	_, err := svc.CompleteMission(ctx, member, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	foreign := store.addMission(other, 10)
	_, err = svc.CompleteMission(ctx, member, foreign)
	require.ErrorIs(t, err, ErrInvalidState)

	mission := store.addMission(member, 10)
	_, err = svc.CompleteMission(ctx, member, mission)
	require.NoError(t, err)
	_, err = svc.CompleteMission(ctx, member, mission)
	require.ErrorIs(t, err, ErrInvalidState)

	stranger := uuid.New()
	orphan := store.addMission(stranger, 10)
	_, err = svc.CompleteMission(ctx, stranger, orphan)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteMission_MissingLevelLeavesStateUntouched(t *testing.T) {
	store := newMemoryProgressStore()
	store.levels = []models.Level{{ID: 9, LevelNumber: 1, RequiredExp: 50}}
	member := uuid.New()
	store.progress[member] = models.MemberCharacter{MemberID: member, LevelID: 9}
	mission := store.addMission(member, 10)
	clock := &fakeClock{t: time.Date(2025, 1, 11, 12, 0, 0, 0, kst)}

	_, err := newTestCharacterService(store, nil, nil, clock).CompleteMission(context.Background(), member, mission)
	require.ErrorIs(t, err, ErrLevelNotFound)
	require.Equal(t, models.MissionStatusSelected, store.missions[mission].Status)
	require.Zero(t, store.progress[member].CompletedMissions)
}

func TestCompleteMission_SideEffectFailuresAreIgnored(t *testing.T) {
	store := newMemoryProgressStore()
	member := uuid.New()
	store.progress[member] = models.MemberCharacter{MemberID: member, LevelID: 1}
	mission := store.addMission(member, 10)
	clock := &fakeClock{t: time.Date(2025, 1, 11, 12, 0, 0, 0, kst)}
	history := &memoryHistory{err: errors.New("scylla down")}
	pub := &recordingPublisher{err: errors.New("kafka down")}

	res, err := newTestCharacterService(store, history, pub, clock).CompleteMission(context.Background(), member, mission)
	require.NoError(t, err)
	require.Equal(t, 1, res.Progress.CurrentStreakDays)
}

func TestFailMission(t *testing.T) {
	store := newMemoryProgressStore()
	member := uuid.New()
	store.progress[member] = models.MemberCharacter{MemberID: member, LevelID: 1, CurrentStreakDays: 2, LongestStreakDays: 2}
	mission := store.addMission(member, 10)
	clock := &fakeClock{t: time.Date(2025, 1, 11, 12, 0, 0, 0, kst)}
	svc := newTestCharacterService(store, nil, nil, clock)

	p, err := svc.FailMission(context.Background(), member, mission)
	require.NoError(t, err)
	require.Equal(t, 1, p.FailedMissions)
	require.Equal(t, 1, p.TotalMissions)
	require.Equal(t, 2, p.CurrentStreakDays)
	require.Equal(t, models.MissionStatusFailed, store.missions[mission].Status)

	_, err = svc.FailMission(context.Background(), member, mission)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestInitAndGetProgress(t *testing.T) {
	store := newMemoryProgressStore()
	clock := &fakeClock{t: time.Now()}
	svc := newTestCharacterService(store, nil, nil, clock)
	member := uuid.New()

	_, err := svc.GetProgress(context.Background(), member)
	require.ErrorIs(t, err, ErrNotFound)

	created, err := svc.InitCharacter(context.Background(), member)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.LevelID)

	got, err := svc.GetProgress(context.Background(), member)
	require.NoError(t, err)
	require.Equal(t, created.MemberID, got.MemberID)

	store.levels = nil
	_, err = svc.InitCharacter(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrLevelNotFound)
}

func TestListHistory(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newMemoryProgressStore()

	events, err := newTestCharacterService(store, nil, nil, clock).ListHistory(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	require.Empty(t, events)
	require.NotNil(t, events)

	history := &memoryHistory{}
	for i := 0; i < 30; i++ {
		history.events = append(history.events, models.CompletionEvent{ExpGained: int64(i)})
	}
	svc := newTestCharacterService(store, history, nil, clock)

	events, err = svc.ListHistory(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	require.Len(t, events, defaultHistoryLimit)

	events, err = svc.ListHistory(context.Background(), uuid.New(), 500)
	require.NoError(t, err)
	require.Len(t, events, 30)
}
