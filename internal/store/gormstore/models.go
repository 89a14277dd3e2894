package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TurnoverRecord mirrors the turnover_records table. Rows are keyed by the
// natural feed key so repeated syncs update in place.
type TurnoverRecord struct {
	TurnoverID   string    `gorm:"type:uuid;primaryKey"`
	SourceRowKey string    `gorm:"not null;uniqueIndex:uniq_turnover_source_row"`
	PeriodDate   string    `gorm:"not null;index:idx_turnover_period"`
	SellerINN    string    `gorm:"not null;index:idx_turnover_seller"`
	BuyerINN     string    `gorm:"not null;index:idx_turnover_buyer"`
	BuyerName    string    `gorm:""`
	Product      string    `gorm:""`
	VolumeML     int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (TurnoverRecord) TableName() string { return "turnover_records" }

func (record *TurnoverRecord) BeforeCreate(tx *gorm.DB) error {
	if record.TurnoverID == "" {
		record.TurnoverID = uuid.NewString()
	}
	return nil
}

// Claim mirrors the claims table. The unique turnover index is the
// at-most-one-claim guarantee.
type Claim struct {
	ClaimID      string    `gorm:"type:uuid;primaryKey"`
	TurnoverID   string    `gorm:"type:uuid;not null;uniqueIndex:uniq_claims_turnover"`
	Claimant     string    `gorm:"not null;index:idx_claims_claimant"`
	GroupAtClaim string    `gorm:"not null;index:idx_claims_group"`
	DisputeState string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Claim) TableName() string { return "claims" }

func (claim *Claim) BeforeCreate(tx *gorm.DB) error {
	if claim.ClaimID == "" {
		claim.ClaimID = uuid.NewString()
	}
	return nil
}

// Dispute mirrors the disputes table.
type Dispute struct {
	DisputeID  string     `gorm:"type:uuid;primaryKey"`
	ClaimID    string     `gorm:"type:uuid;not null;index:idx_disputes_claim"`
	Opener     string     `gorm:"not null"`
	Moderator  string     `gorm:"not null;index:idx_disputes_moderator"`
	Status     string     `gorm:"not null"`
	CreatedAt  time.Time  `gorm:"not null"`
	ResolvedAt *time.Time `gorm:""`
}

func (Dispute) TableName() string { return "disputes" }

func (dispute *Dispute) BeforeCreate(tx *gorm.DB) error {
	if dispute.DisputeID == "" {
		dispute.DisputeID = uuid.NewString()
	}
	return nil
}

// Registration mirrors the registrations table.
type Registration struct {
	UserID    string    `gorm:"primaryKey"`
	GroupID   string    `gorm:"not null;index:idx_registrations_group"`
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Registration) TableName() string { return "registrations" }

// CompanyGroup mirrors the company_groups table. PoolWindowEnd is the last
// period date still priced into the group bonus pool.
type CompanyGroup struct {
	GroupID       string    `gorm:"primaryKey"`
	Title         string    `gorm:""`
	SellerINN     string    `gorm:"not null;uniqueIndex:uniq_groups_seller_inn"`
	ModeratorID   string    `gorm:"not null"`
	PoolWindowEnd string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (CompanyGroup) TableName() string { return "company_groups" }

// LedgerEntry mirrors the ledger_entries table, append-only.
type LedgerEntry struct {
	EntryID     string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"not null;index:idx_ledger_user_created,priority:1"`
	ClaimID     *string   `gorm:"type:uuid;index:idx_ledger_claim"`
	Kind        string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	Comment     string    `gorm:""`
	CreatedAt   time.Time `gorm:"not null;index:idx_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// StageAward mirrors the stage_awards registry table.
type StageAward struct {
	ClaimID     string    `gorm:"type:uuid;primaryKey"`
	Stage       string    `gorm:"primaryKey"`
	Holder      string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (StageAward) TableName() string { return "stage_awards" }

// WithdrawalRequest mirrors the withdrawal_requests table.
type WithdrawalRequest struct {
	WithdrawalID  string     `gorm:"type:uuid;primaryKey"`
	UserID        string     `gorm:"not null;index:idx_withdrawals_user"`
	AmountCents   int64      `gorm:"not null"`
	RequisitesRef string     `gorm:"not null"`
	Status        string     `gorm:"not null"`
	CreatedAt     time.Time  `gorm:"not null"`
	ResolvedAt    *time.Time `gorm:""`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

func (request *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if request.WithdrawalID == "" {
		request.WithdrawalID = uuid.NewString()
	}
	return nil
}

// Supertask mirrors the supertasks table.
type Supertask struct {
	SupertaskID    string     `gorm:"primaryKey"`
	GroupID        string     `gorm:"not null;index:idx_supertasks_group"`
	Title          string     `gorm:""`
	TargetBuyerINN string     `gorm:"not null;index:idx_supertasks_target"`
	RewardCents    int64      `gorm:"not null"`
	Status         string     `gorm:"not null"`
	Winner         *string    `gorm:""`
	WinnerClaimID  *string    `gorm:"type:uuid;index:idx_supertasks_winner_claim"`
	CreatedAt      time.Time  `gorm:"not null"`
	ClosedAt       *time.Time `gorm:""`
}

func (Supertask) TableName() string { return "supertasks" }

// AvgLevel mirrors the avg_levels tariff table.
type AvgLevel struct {
	Code        string `gorm:"primaryKey"`
	ThresholdML int64  `gorm:"not null"`
	RewardCents int64  `gorm:"not null"`
}

func (AvgLevel) TableName() string { return "avg_levels" }

// AvgLevelAward mirrors the avg_level_awards table. The composite key is
// the once-per-month guarantee.
type AvgLevelAward struct {
	Level     string    `gorm:"primaryKey"`
	UserID    string    `gorm:"primaryKey"`
	PeriodKey string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AvgLevelAward) TableName() string { return "avg_level_awards" }

// OutboxMessage mirrors the outbox_messages table.
type OutboxMessage struct {
	MessageID  string         `gorm:"type:uuid;primaryKey"`
	Topic      string         `gorm:"not null"`
	Key        string         `gorm:"not null"`
	Payload    datatypes.JSON `gorm:"not null"`
	Status     string         `gorm:"not null;index:idx_outbox_status"`
	RetryCount int            `gorm:"not null;default:0"`
	CreatedAt  time.Time      `gorm:"not null"`
	SentAt     *time.Time     `gorm:""`
}

func (OutboxMessage) TableName() string { return "outbox_messages" }

func (message *OutboxMessage) BeforeCreate(tx *gorm.DB) error {
	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}
	return nil
}

// SyncStatus mirrors the sync_status table, one row per feed.
type SyncStatus struct {
	Name          string     `gorm:"primaryKey"`
	LastRunAt     *time.Time `gorm:""`
	LastSuccessAt *time.Time `gorm:""`
	LastError     string     `gorm:""`
	RowsUpserted  int64      `gorm:"not null"`
}

func (SyncStatus) TableName() string { return "sync_status" }

// AutoMigrate creates the schema. Intended for sqlite and test databases;
// postgres deployments migrate out of band.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TurnoverRecord{},
		&Claim{},
		&Dispute{},
		&Registration{},
		&CompanyGroup{},
		&LedgerEntry{},
		&StageAward{},
		&WithdrawalRequest{},
		&Supertask{},
		&AvgLevel{},
		&AvgLevelAward{},
		&OutboxMessage{},
		&SyncStatus{},
	)
}
