package ratings

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

// ErrRatingsConfig reports invalid service wiring.
var ErrRatingsConfig = errors.New("invalid ratings config")

// Standing is one seller's claimed volume for a month.
type Standing struct {
	UserID   claims.UserID
	GroupID  claims.GroupID
	VolumeML int64
}

// Ranked is a standing with its positions filled in.
type Ranked struct {
	Standing
	GlobalRank int
	GroupRank  int
}

// Store reads standings from claimed turnover.
type Store interface {
	// MonthlyStandings sums undisputed claimed volume per seller for the
	// month.
	MonthlyStandings(ctx context.Context, period finance.PeriodKey) ([]Standing, error)
	// AllTimeStandings sums undisputed claimed volume per seller across
	// all periods.
	AllTimeStandings(ctx context.Context) ([]Standing, error)
}

// Service computes leaderboards.
type Service struct {
	store Store
}

// NewService wires a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrRatingsConfig)
	}
	return &Service{store: store}, nil
}

// Monthly returns the ranked leaderboard for one month.
func (service *Service) Monthly(ctx context.Context, period finance.PeriodKey) ([]Ranked, error) {
	standings, err := service.store.MonthlyStandings(ctx, period)
	if err != nil {
		return nil, err
	}
	return AssignRanks(standings), nil
}

// AllTime returns the ranked leaderboard over every period.
func (service *Service) AllTime(ctx context.Context) ([]Ranked, error) {
	standings, err := service.store.AllTimeStandings(ctx)
	if err != nil {
		return nil, err
	}
	return AssignRanks(standings), nil
}

// AssignRanks orders standings by volume descending, ties broken by user
// id ascending, and numbers positions both globally and within each
// group. Ties still receive distinct sequential ranks.
func AssignRanks(standings []Standing) []Ranked {
	ordered := append([]Standing(nil), standings...)
	sort.Slice(ordered, func(left, right int) bool {
		if ordered[left].VolumeML != ordered[right].VolumeML {
			return ordered[left].VolumeML > ordered[right].VolumeML
		}
		return ordered[left].UserID.String() < ordered[right].UserID.String()
	})

	ranked := make([]Ranked, 0, len(ordered))
	groupPositions := make(map[claims.GroupID]int)
	for index, standing := range ordered {
		groupPositions[standing.GroupID]++
		ranked = append(ranked, Ranked{
			Standing:   standing,
			GlobalRank: index + 1,
			GroupRank:  groupPositions[standing.GroupID],
		})
	}
	return ranked
}
