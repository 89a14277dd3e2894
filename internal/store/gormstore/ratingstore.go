package gormstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/claimledger/internal/ratings"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

const errorSubjectStanding = "standing"

// RatingStore implements ratings.Store using GORM.
type RatingStore struct {
	db *gorm.DB
}

// NewRatingStore returns a RatingStore backed by gorm.DB.
func NewRatingStore(db *gorm.DB) *RatingStore {
	return &RatingStore{db: db}
}

type standingRow struct {
	Claimant     string
	GroupAtClaim string
	Total        int64
}

// MonthlyStandings sums undisputed claimed volume per seller for the
// month, keyed by the group recorded at claim time.
func (store *RatingStore) MonthlyStandings(ctx context.Context, period finance.PeriodKey) ([]ratings.Standing, error) {
	var rows []standingRow
	err := store.standingsQuery(ctx).
		Where("turnover_records.period_date LIKE ?", period.String()+"-%").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStanding, errorCodeList, err)
	}
	return mapStandings(rows)
}

// AllTimeStandings sums undisputed claimed volume per seller across all
// periods.
func (store *RatingStore) AllTimeStandings(ctx context.Context) ([]ratings.Standing, error) {
	var rows []standingRow
	err := store.standingsQuery(ctx).Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStanding, errorCodeList, err)
	}
	return mapStandings(rows)
}

func (store *RatingStore) standingsQuery(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx).
		Model(&Claim{}).
		Select("claims.claimant, claims.group_at_claim, coalesce(sum(turnover_records.volume_ml),0) as total").
		Joins("join turnover_records on turnover_records.turnover_id = claims.turnover_id").
		Where("claims.dispute_state <> ?", claims.DisputeStateOpen.String()).
		Group("claims.claimant, claims.group_at_claim")
}

func mapStandings(rows []standingRow) ([]ratings.Standing, error) {
	standings := make([]ratings.Standing, 0, len(rows))
	for _, row := range rows {
		userID, err := claims.NewUserID(row.Claimant)
		if err != nil {
			return nil, wrapStoreError(errorSubjectStanding, errorCodeInvalid, err)
		}
		groupID, err := claims.NewGroupID(row.GroupAtClaim)
		if err != nil {
			return nil, wrapStoreError(errorSubjectStanding, errorCodeInvalid, err)
		}
		standings = append(standings, ratings.Standing{UserID: userID, GroupID: groupID, VolumeML: row.Total})
	}
	return standings, nil
}
