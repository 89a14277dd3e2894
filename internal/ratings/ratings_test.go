package ratings

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

type stubStandingsStore struct {
	standings []Standing
	err       error
}

func (store *stubStandingsStore) MonthlyStandings(ctx context.Context, period finance.PeriodKey) ([]Standing, error) {
	if store.err != nil {
		return nil, store.err
	}
	return store.standings, nil
}

func (store *stubStandingsStore) AllTimeStandings(ctx context.Context) ([]Standing, error) {
	if store.err != nil {
		return nil, store.err
	}
	return store.standings, nil
}

func mustUserID(test *testing.T, value string) claims.UserID {
	test.Helper()
	userID, err := claims.NewUserID(value)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustGroupID(test *testing.T, value string) claims.GroupID {
	test.Helper()
	groupID, err := claims.NewGroupID(value)
	if err != nil {
		test.Fatalf("group id: %v", err)
	}
	return groupID
}

func mustPeriodKey(test *testing.T, value string) finance.PeriodKey {
	test.Helper()
	periodKey, err := finance.NewPeriodKey(value)
	if err != nil {
		test.Fatalf("period key: %v", err)
	}
	return periodKey
}

func TestAssignRanksOrdersByVolumeThenUserID(test *testing.T) {
	test.Parallel()
	alpha := mustGroupID(test, "group-alpha")
	beta := mustGroupID(test, "group-beta")
	standings := []Standing{
		{UserID: mustUserID(test, "20"), GroupID: alpha, VolumeML: 5_000},
		{UserID: mustUserID(test, "10"), GroupID: beta, VolumeML: 9_000},
		{UserID: mustUserID(test, "15"), GroupID: alpha, VolumeML: 5_000},
	}

	ranked := AssignRanks(standings)
	if len(ranked) != 3 {
		test.Fatalf("expected 3 ranked standings, got %d", len(ranked))
	}
	if ranked[0].UserID.String() != "10" || ranked[0].GlobalRank != 1 {
		test.Fatalf("expected top volume first, got %+v", ranked[0])
	}
	if ranked[1].UserID.String() != "15" || ranked[2].UserID.String() != "20" {
		test.Fatalf("expected ties broken by user id, got %+v then %+v", ranked[1], ranked[2])
	}
	if ranked[2].GlobalRank != 3 {
		test.Fatalf("expected distinct sequential ranks, got %d", ranked[2].GlobalRank)
	}
}

func TestAssignRanksNumbersGroupsIndependently(test *testing.T) {
	test.Parallel()
	alpha := mustGroupID(test, "group-alpha")
	beta := mustGroupID(test, "group-beta")
	standings := []Standing{
		{UserID: mustUserID(test, "1"), GroupID: alpha, VolumeML: 9_000},
		{UserID: mustUserID(test, "2"), GroupID: beta, VolumeML: 7_000},
		{UserID: mustUserID(test, "3"), GroupID: alpha, VolumeML: 5_000},
	}

	ranked := AssignRanks(standings)
	if ranked[1].GroupRank != 1 {
		test.Fatalf("expected group leader rank 1 in beta, got %d", ranked[1].GroupRank)
	}
	if ranked[2].GroupRank != 2 {
		test.Fatalf("expected second alpha seller ranked 2 in group, got %d", ranked[2].GroupRank)
	}
	if ranked[2].GlobalRank != 3 {
		test.Fatalf("expected global rank 3, got %d", ranked[2].GlobalRank)
	}
}

func TestAssignRanksLeavesInputUntouched(test *testing.T) {
	test.Parallel()
	alpha := mustGroupID(test, "group-alpha")
	standings := []Standing{
		{UserID: mustUserID(test, "2"), GroupID: alpha, VolumeML: 1_000},
		{UserID: mustUserID(test, "1"), GroupID: alpha, VolumeML: 2_000},
	}

	AssignRanks(standings)
	if standings[0].UserID.String() != "2" {
		test.Fatalf("expected input order preserved, got %+v", standings)
	}
}

func TestMonthlyReturnsRankedStandings(test *testing.T) {
	test.Parallel()
	alpha := mustGroupID(test, "group-alpha")
	store := &stubStandingsStore{standings: []Standing{
		{UserID: mustUserID(test, "1"), GroupID: alpha, VolumeML: 3_000},
		{UserID: mustUserID(test, "2"), GroupID: alpha, VolumeML: 4_000},
	}}
	service, err := NewService(store)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}

	ranked, err := service.Monthly(context.Background(), mustPeriodKey(test, "2026-03"))
	if err != nil {
		test.Fatalf("monthly: %v", err)
	}
	if ranked[0].UserID.String() != "2" || ranked[0].GlobalRank != 1 {
		test.Fatalf("expected leader first, got %+v", ranked[0])
	}
}

func TestAllTimeReturnsRankedStandings(test *testing.T) {
	test.Parallel()
	alpha := mustGroupID(test, "group-alpha")
	store := &stubStandingsStore{standings: []Standing{
		{UserID: mustUserID(test, "1"), GroupID: alpha, VolumeML: 3_000},
		{UserID: mustUserID(test, "2"), GroupID: alpha, VolumeML: 4_000},
	}}
	service, err := NewService(store)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}

	ranked, err := service.AllTime(context.Background())
	if err != nil {
		test.Fatalf("all time: %v", err)
	}
	if ranked[0].UserID.String() != "2" || ranked[0].GlobalRank != 1 {
		test.Fatalf("expected leader first, got %+v", ranked[0])
	}
}

func TestMonthlyPropagatesStoreFailure(test *testing.T) {
	test.Parallel()
	storeFailure := errors.New("storage offline")
	service, err := NewService(&stubStandingsStore{err: storeFailure})
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	if _, err := service.Monthly(context.Background(), mustPeriodKey(test, "2026-03")); !errors.Is(err, storeFailure) {
		test.Fatalf("expected store failure, got %v", err)
	}
}

func TestNewServiceRequiresStore(test *testing.T) {
	test.Parallel()
	if _, err := NewService(nil); !errors.Is(err, ErrRatingsConfig) {
		test.Fatalf("expected ErrRatingsConfig, got %v", err)
	}
}
