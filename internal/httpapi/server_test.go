package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/claimledger/internal/notify"
	"github.com/MarkoPoloResearchLab/claimledger/internal/ratings"
	"github.com/MarkoPoloResearchLab/claimledger/internal/turnover"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
	"github.com/MarkoPoloResearchLab/claimledger/pkg/finance"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "claimledger-test"
	testNowUnix    = int64(1_750_000_000)

	sellerID    = "1001"
	rivalID     = "1002"
	moderatorID = "2001"
	managerID   = "3001"
)

type apiClaimStore struct {
	registrations map[string]claims.Registration
	turnovers     map[string]claims.TurnoverRecord
	claims        map[string]claims.Claim
	claimedRows   map[string]bool
	disputes      map[string]claims.Dispute
	sellerGroups  map[string]claims.GroupID
	moderators    map[string]claims.UserID
	sequence      int
}

func newAPIClaimStore() *apiClaimStore {
	return &apiClaimStore{
		registrations: make(map[string]claims.Registration),
		turnovers:     make(map[string]claims.TurnoverRecord),
		claims:        make(map[string]claims.Claim),
		claimedRows:   make(map[string]bool),
		disputes:      make(map[string]claims.Dispute),
		sellerGroups:  make(map[string]claims.GroupID),
		moderators:    make(map[string]claims.UserID),
	}
}

func (store *apiClaimStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore claims.Store) error) error {
	return fn(ctx, store)
}

func (store *apiClaimStore) GetRegistration(ctx context.Context, userID claims.UserID) (claims.Registration, error) {
	registration, found := store.registrations[userID.String()]
	if !found {
		return claims.Registration{}, claims.ErrUnknownRegistration
	}
	return registration, nil
}

func (store *apiClaimStore) GetTurnover(ctx context.Context, turnoverID claims.TurnoverID) (claims.TurnoverRecord, error) {
	record, found := store.turnovers[turnoverID.String()]
	if !found {
		return claims.TurnoverRecord{}, claims.ErrUnknownTurnover
	}
	return record, nil
}

func (store *apiClaimStore) GroupForSeller(ctx context.Context, sellerINN claims.TaxID) (claims.GroupID, error) {
	groupID, found := store.sellerGroups[sellerINN.String()]
	if !found {
		return claims.GroupID{}, claims.ErrUnknownGroup
	}
	return groupID, nil
}

func (store *apiClaimStore) InsertClaim(ctx context.Context, claim claims.Claim) (claims.Claim, error) {
	if store.claimedRows[claim.TurnoverID.String()] {
		return claims.Claim{}, claims.ErrAlreadyClaimed
	}
	store.sequence++
	claimID, err := claims.NewClaimID(fmt.Sprintf("claim-%d", store.sequence))
	if err != nil {
		return claims.Claim{}, err
	}
	claim.ID = claimID
	store.claims[claimID.String()] = claim
	store.claimedRows[claim.TurnoverID.String()] = true
	return claim, nil
}

func (store *apiClaimStore) GetClaim(ctx context.Context, claimID claims.ClaimID) (claims.Claim, error) {
	claim, found := store.claims[claimID.String()]
	if !found {
		return claims.Claim{}, claims.ErrUnknownClaim
	}
	return claim, nil
}

func (store *apiClaimStore) MarkClaimDisputed(ctx context.Context, claimID claims.ClaimID) error {
	claim := store.claims[claimID.String()]
	if claim.DisputeState == claims.DisputeStateOpen {
		return claims.ErrAlreadyDisputed
	}
	claim.DisputeState = claims.DisputeStateOpen
	store.claims[claimID.String()] = claim
	return nil
}

func (store *apiClaimStore) SetClaimDisputeState(ctx context.Context, claimID claims.ClaimID, state claims.DisputeState) error {
	claim := store.claims[claimID.String()]
	claim.DisputeState = state
	store.claims[claimID.String()] = claim
	return nil
}

func (store *apiClaimStore) ReassignClaim(ctx context.Context, claimID claims.ClaimID, claimant claims.UserID, group claims.GroupID) error {
	claim := store.claims[claimID.String()]
	claim.Claimant = claimant
	claim.GroupAtClaim = group
	store.claims[claimID.String()] = claim
	return nil
}

func (store *apiClaimStore) InsertDispute(ctx context.Context, dispute claims.Dispute) (claims.Dispute, error) {
	store.sequence++
	disputeID, err := claims.NewDisputeID(fmt.Sprintf("dispute-%d", store.sequence))
	if err != nil {
		return claims.Dispute{}, err
	}
	dispute.ID = disputeID
	store.disputes[disputeID.String()] = dispute
	return dispute, nil
}

func (store *apiClaimStore) GetDispute(ctx context.Context, disputeID claims.DisputeID) (claims.Dispute, error) {
	dispute, found := store.disputes[disputeID.String()]
	if !found {
		return claims.Dispute{}, claims.ErrUnknownDispute
	}
	return dispute, nil
}

func (store *apiClaimStore) HasRejectedDispute(ctx context.Context, claimID claims.ClaimID) (bool, error) {
	for _, dispute := range store.disputes {
		if dispute.ClaimID == claimID && dispute.Status == claims.DisputeStatusRejected {
			return true, nil
		}
	}
	return false, nil
}

func (store *apiClaimStore) TransitionDispute(ctx context.Context, disputeID claims.DisputeID, from, to claims.DisputeStatus, resolvedUnixUTC int64) error {
	dispute := store.disputes[disputeID.String()]
	if dispute.Status != from {
		return claims.ErrAlreadyResolved
	}
	dispute.Status = to
	dispute.ResolvedUnixUTC = resolvedUnixUTC
	store.disputes[disputeID.String()] = dispute
	return nil
}

func (store *apiClaimStore) ModeratorForGroup(ctx context.Context, groupID claims.GroupID) (claims.UserID, error) {
	moderator, found := store.moderators[groupID.String()]
	if !found {
		return claims.UserID{}, claims.ErrUnknownGroup
	}
	return moderator, nil
}

type apiFinanceStore struct {
	entries     []finance.LedgerEntry
	withdrawals map[string]finance.WithdrawalRequest
	sequence    int
}

func newAPIFinanceStore() *apiFinanceStore {
	return &apiFinanceStore{withdrawals: make(map[string]finance.WithdrawalRequest)}
}

func (store *apiFinanceStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore finance.Store) error) error {
	return fn(ctx, store)
}

func (store *apiFinanceStore) LockUserLedger(ctx context.Context, userID claims.UserID) error {
	return nil
}

func (store *apiFinanceStore) InsertEntry(ctx context.Context, input finance.EntryInput) (finance.LedgerEntry, error) {
	store.sequence++
	entryID, err := finance.NewEntryID(fmt.Sprintf("entry-%d", store.sequence))
	if err != nil {
		return finance.LedgerEntry{}, err
	}
	entry := finance.LedgerEntry{
		ID:             entryID,
		UserID:         input.UserID,
		ClaimID:        input.ClaimID,
		Kind:           input.Kind,
		AmountCents:    input.AmountCents,
		Comment:        input.Comment,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *apiFinanceStore) ListEntries(ctx context.Context, userID claims.UserID, beforeUnixUTC int64, limit int) ([]finance.LedgerEntry, error) {
	listed := make([]finance.LedgerEntry, 0)
	for index := len(store.entries) - 1; index >= 0 && len(listed) < limit; index-- {
		entry := store.entries[index]
		if entry.UserID != userID {
			continue
		}
		if beforeUnixUTC > 0 && entry.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		listed = append(listed, entry)
	}
	return listed, nil
}

func (store *apiFinanceStore) SumEarned(ctx context.Context, userID claims.UserID) (int64, error) {
	var total int64
	for _, entry := range store.entries {
		if entry.UserID == userID {
			total += entry.AmountCents.Int64()
		}
	}
	return total, nil
}

func (store *apiFinanceStore) SumFrozen(ctx context.Context, userID claims.UserID) (int64, error) {
	return 0, nil
}

func (store *apiFinanceStore) SumWithdrawalHolds(ctx context.Context, userID claims.UserID) (int64, error) {
	var total int64
	for _, withdrawal := range store.withdrawals {
		if withdrawal.UserID == userID && withdrawal.Status != finance.WithdrawalRejected {
			total += withdrawal.AmountCents.Int64()
		}
	}
	return total, nil
}

func (store *apiFinanceStore) InsertWithdrawal(ctx context.Context, request finance.WithdrawalRequest) (finance.WithdrawalRequest, error) {
	store.sequence++
	withdrawalID, err := finance.NewWithdrawalID(fmt.Sprintf("withdrawal-%d", store.sequence))
	if err != nil {
		return finance.WithdrawalRequest{}, err
	}
	request.ID = withdrawalID
	store.withdrawals[withdrawalID.String()] = request
	return request, nil
}

func (store *apiFinanceStore) GetWithdrawal(ctx context.Context, withdrawalID finance.WithdrawalID) (finance.WithdrawalRequest, error) {
	withdrawal, found := store.withdrawals[withdrawalID.String()]
	if !found {
		return finance.WithdrawalRequest{}, finance.ErrUnknownWithdrawal
	}
	return withdrawal, nil
}

func (store *apiFinanceStore) TransitionWithdrawal(ctx context.Context, withdrawalID finance.WithdrawalID, from, to finance.WithdrawalStatus, resolvedUnixUTC int64) error {
	withdrawal, found := store.withdrawals[withdrawalID.String()]
	if !found || withdrawal.Status != from {
		return finance.ErrWithdrawalClosed
	}
	withdrawal.Status = to
	withdrawal.ResolvedUnixUTC = resolvedUnixUTC
	store.withdrawals[withdrawalID.String()] = withdrawal
	return nil
}

func (store *apiFinanceStore) GetClaimFacts(ctx context.Context, claimID claims.ClaimID) (finance.ClaimFacts, error) {
	return finance.ClaimFacts{}, finance.ErrUnknownClaimFacts
}

func (store *apiFinanceStore) GetStageAward(ctx context.Context, claimID claims.ClaimID, stage finance.StageCode) (finance.StageAward, error) {
	return finance.StageAward{}, finance.ErrUnknownStageAward
}

func (store *apiFinanceStore) InsertStageAward(ctx context.Context, award finance.StageAward) (bool, error) {
	return true, nil
}

func (store *apiFinanceStore) UpsertStageAward(ctx context.Context, award finance.StageAward) error {
	return nil
}

func (store *apiFinanceStore) DeleteStageAward(ctx context.Context, claimID claims.ClaimID, stage finance.StageCode) error {
	return nil
}

func (store *apiFinanceStore) GetSupertask(ctx context.Context, supertaskID finance.SupertaskID) (finance.Supertask, error) {
	return finance.Supertask{}, finance.ErrUnknownSupertask
}

func (store *apiFinanceStore) ActiveSupertaskForBuyer(ctx context.Context, groupID claims.GroupID, buyerINN claims.TaxID) (finance.Supertask, error) {
	return finance.Supertask{}, finance.ErrUnknownSupertask
}

func (store *apiFinanceStore) SupertaskForClaim(ctx context.Context, claimID claims.ClaimID) (finance.Supertask, error) {
	return finance.Supertask{}, finance.ErrUnknownSupertask
}

func (store *apiFinanceStore) CloseSupertask(ctx context.Context, supertaskID finance.SupertaskID, winner claims.UserID, winnerClaim claims.ClaimID, closedUnixUTC int64) error {
	return finance.ErrUnknownSupertask
}

func (store *apiFinanceStore) ListAvgLevels(ctx context.Context) ([]finance.AvgLevel, error) {
	return nil, nil
}

func (store *apiFinanceStore) SaveAvgLevels(ctx context.Context, levels []finance.AvgLevel) error {
	return nil
}

func (store *apiFinanceStore) ActiveClaimants(ctx context.Context, period finance.PeriodKey) ([]claims.UserID, error) {
	return nil, nil
}

func (store *apiFinanceStore) HasAvgLevelAward(ctx context.Context, level finance.LevelCode, userID claims.UserID, period finance.PeriodKey) (bool, error) {
	return false, nil
}

func (store *apiFinanceStore) InsertAvgLevelAward(ctx context.Context, award finance.AvgLevelAward) error {
	return nil
}

func (store *apiFinanceStore) MonthlyClaimedVolumeML(ctx context.Context, userID claims.UserID, period finance.PeriodKey) (int64, error) {
	return 0, nil
}

type apiRatingStore struct {
	standings []ratings.Standing
}

func (store *apiRatingStore) MonthlyStandings(ctx context.Context, period finance.PeriodKey) ([]ratings.Standing, error) {
	return store.standings, nil
}

func (store *apiRatingStore) AllTimeStandings(ctx context.Context) ([]ratings.Standing, error) {
	return store.standings, nil
}

type apiSyncControl struct {
	run    turnover.SyncRun
	report turnover.Report
	runs   int
}

func (control *apiSyncControl) Status(ctx context.Context) (turnover.SyncRun, error) {
	return control.run, nil
}

func (control *apiSyncControl) RunOnce(ctx context.Context) (turnover.Report, error) {
	control.runs++
	return control.report, nil
}

type memoryOutbox struct {
	messages []notify.Message
}

func (outbox *memoryOutbox) Enqueue(ctx context.Context, message notify.Message) error {
	outbox.messages = append(outbox.messages, message)
	return nil
}

func (outbox *memoryOutbox) ListPending(ctx context.Context, limit int) ([]notify.Message, error) {
	return outbox.messages, nil
}

func (outbox *memoryOutbox) MarkSent(ctx context.Context, messageID string, sentUnixUTC int64) error {
	return nil
}

func (outbox *memoryOutbox) RecordFailure(ctx context.Context, messageID string, maxAttempts int) error {
	return nil
}

type testHarness struct {
	server       *Server
	claimStore   *apiClaimStore
	financeStore *apiFinanceStore
	outbox       *memoryOutbox
	syncControl  *apiSyncControl
}

func newTestHarness(test *testing.T) *testHarness {
	test.Helper()
	claimStore := newAPIClaimStore()
	financeStore := newAPIFinanceStore()
	outbox := &memoryOutbox{}
	syncControl := &apiSyncControl{
		run: turnover.SyncRun{LastSuccessUnixUTC: testNowUnix, RowsUpserted: 3},
		report: turnover.Report{
			Fetched:            2,
			Upserted:           2,
			Inserted:           1,
			AffectedSellerINNs: []string{"7700000001"},
			AffectedGroupIDs:   []string{"group-alpha"},
		},
	}

	groupAlpha := mustGroupID(test, "group-alpha")
	groupBeta := mustGroupID(test, "group-beta")
	claimStore.registrations[sellerID] = claims.Registration{
		UserID: mustUserID(test, sellerID), GroupID: groupAlpha, Role: claims.RoleSeller,
	}
	claimStore.registrations[rivalID] = claims.Registration{
		UserID: mustUserID(test, rivalID), GroupID: groupAlpha, Role: claims.RoleSeller,
	}
	claimStore.registrations[moderatorID] = claims.Registration{
		UserID: mustUserID(test, moderatorID), GroupID: groupAlpha, Role: claims.RoleModerator,
	}
	claimStore.registrations[managerID] = claims.Registration{
		UserID: mustUserID(test, managerID), GroupID: groupBeta, Role: claims.RoleManager,
	}
	claimStore.sellerGroups["7700000001"] = groupAlpha
	claimStore.moderators[groupAlpha.String()] = mustUserID(test, moderatorID)

	turnoverID := mustTurnoverID(test, "turnover-1")
	claimStore.turnovers[turnoverID.String()] = claims.TurnoverRecord{
		ID:        turnoverID,
		Period:    mustPeriodDate(test, "2026-03-01"),
		SellerINN: mustTaxID(test, "7700000001"),
		BuyerINN:  mustTaxID(test, "7700000002"),
		Volume:    mustVolume(test, 10_000),
	}

	policy := claims.Policy{LaunchDate: mustPeriodDate(test, "2026-02-17")}
	now := func() int64 { return testNowUnix }

	claimService, err := claims.NewService(claimStore, policy, now)
	if err != nil {
		test.Fatalf("claim service: %v", err)
	}
	financeService, err := finance.NewService(financeStore, now)
	if err != nil {
		test.Fatalf("finance service: %v", err)
	}
	goalService, err := finance.NewGoals(financeStore, now)
	if err != nil {
		test.Fatalf("goal service: %v", err)
	}
	ratingService, err := ratings.NewService(&apiRatingStore{standings: []ratings.Standing{
		{UserID: mustUserID(test, sellerID), GroupID: groupAlpha, VolumeML: 9_000},
		{UserID: mustUserID(test, rivalID), GroupID: groupAlpha, VolumeML: 4_000},
	}})
	if err != nil {
		test.Fatalf("rating service: %v", err)
	}

	cfg := Config{TokenSigningKey: testSigningKey, TokenIssuer: testIssuer}
	server, err := NewServer(cfg, claimService, financeService, goalService, ratingService,
		syncControl, outbox, now, zap.NewNop())
	if err != nil {
		test.Fatalf("new server: %v", err)
	}
	return &testHarness{server: server, claimStore: claimStore, financeStore: financeStore, outbox: outbox, syncControl: syncControl}
}

func (harness *testHarness) request(test *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	test.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := IssueToken([]byte(testSigningKey), testIssuer, userID, time.Hour, time.Unix(testNowUnix, 0))
		if err != nil {
			test.Fatalf("issue token: %v", err)
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	harness.server.Router().ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(test *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	test.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		test.Fatalf("decode body %q: %v", recorder.Body.String(), err)
	}
	return body
}

func mustUserID(test *testing.T, raw string) claims.UserID {
	test.Helper()
	userID, err := claims.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustGroupID(test *testing.T, raw string) claims.GroupID {
	test.Helper()
	groupID, err := claims.NewGroupID(raw)
	if err != nil {
		test.Fatalf("group id: %v", err)
	}
	return groupID
}

func mustTaxID(test *testing.T, raw string) claims.TaxID {
	test.Helper()
	taxID, err := claims.NewTaxID(raw)
	if err != nil {
		test.Fatalf("tax id: %v", err)
	}
	return taxID
}

func mustTurnoverID(test *testing.T, raw string) claims.TurnoverID {
	test.Helper()
	turnoverID, err := claims.NewTurnoverID(raw)
	if err != nil {
		test.Fatalf("turnover id: %v", err)
	}
	return turnoverID
}

func mustPeriodDate(test *testing.T, raw string) claims.PeriodDate {
	test.Helper()
	period, err := claims.NewPeriodDate(raw)
	if err != nil {
		test.Fatalf("period date: %v", err)
	}
	return period
}

func mustVolume(test *testing.T, raw int64) claims.VolumeML {
	test.Helper()
	volume, err := claims.NewVolumeML(raw)
	if err != nil {
		test.Fatalf("volume: %v", err)
	}
	return volume
}

func TestHealthzNeedsNoToken(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestAPIRejectsMissingToken(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodGet, "/api/balance", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestAPIRejectsForgedToken(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	token, err := IssueToken([]byte("other-key"), testIssuer, sellerID, time.Hour, time.Unix(testNowUnix, 0))
	if err != nil {
		test.Fatalf("issue token: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	harness.server.Router().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestClaimCreatesAndNotifies(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodPost, "/api/claims", sellerID, claimRequest{TurnoverID: "turnover-1"})
	if recorder.Code != http.StatusCreated {
		test.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(test, recorder)
	claimBody, _ := body["claim"].(map[string]any)
	if claimBody["claimant"] != sellerID {
		test.Fatalf("unexpected claim payload: %v", body)
	}
	if len(harness.outbox.messages) != 1 || harness.outbox.messages[0].Topic != notify.TopicClaims {
		test.Fatalf("expected one claim push, got %+v", harness.outbox.messages)
	}
}

func TestSecondClaimConflicts(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	first := harness.request(test, http.MethodPost, "/api/claims", sellerID, claimRequest{TurnoverID: "turnover-1"})
	if first.Code != http.StatusCreated {
		test.Fatalf("first claim: %d", first.Code)
	}
	second := harness.request(test, http.MethodPost, "/api/claims", rivalID, claimRequest{TurnoverID: "turnover-1"})
	if second.Code != http.StatusConflict {
		test.Fatalf("expected 409, got %d: %s", second.Code, second.Body.String())
	}
	body := decodeBody(test, second)
	errorBody, _ := body["error"].(map[string]any)
	if errorBody["code"] != "already_claimed" {
		test.Fatalf("unexpected error code: %v", body)
	}
}

func TestClaimUnknownTurnoverIsNotFound(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodPost, "/api/claims", sellerID, claimRequest{TurnoverID: "turnover-missing"})
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestManagerMayNotClaim(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodPost, "/api/claims", managerID, claimRequest{TurnoverID: "turnover-1"})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestUnregisteredCallerIsForbidden(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodPost, "/api/claims", "9999", claimRequest{TurnoverID: "turnover-1"})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403, got %d", recorder.Code)
	}
}

func TestDisputeFlowOverHTTP(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	created := harness.request(test, http.MethodPost, "/api/claims", sellerID, claimRequest{TurnoverID: "turnover-1"})
	if created.Code != http.StatusCreated {
		test.Fatalf("claim: %d", created.Code)
	}
	claimBody := decodeBody(test, created)["claim"].(map[string]any)
	claimID := claimBody["claim_id"].(string)

	opened := harness.request(test, http.MethodPost, "/api/disputes", rivalID, openDisputeRequest{ClaimID: claimID})
	if opened.Code != http.StatusCreated {
		test.Fatalf("open dispute: %d: %s", opened.Code, opened.Body.String())
	}
	disputeBody := decodeBody(test, opened)["dispute"].(map[string]any)
	disputeID := disputeBody["dispute_id"].(string)
	if disputeBody["moderator"] != moderatorID {
		test.Fatalf("expected group moderator assigned, got %v", disputeBody)
	}

	sellerResolve := harness.request(test, http.MethodPost, "/api/disputes/"+disputeID+"/resolve", sellerID, resolveDisputeRequest{Decision: "approve"})
	if sellerResolve.Code != http.StatusForbidden {
		test.Fatalf("expected seller barred from resolution, got %d", sellerResolve.Code)
	}

	resolved := harness.request(test, http.MethodPost, "/api/disputes/"+disputeID+"/resolve", moderatorID, resolveDisputeRequest{Decision: "approve"})
	if resolved.Code != http.StatusOK {
		test.Fatalf("resolve: %d: %s", resolved.Code, resolved.Body.String())
	}
	if harness.claimStore.claims[claimID].Claimant.String() != rivalID {
		test.Fatalf("expected claim reassigned to opener")
	}

	again := harness.request(test, http.MethodPost, "/api/disputes/"+disputeID+"/resolve", moderatorID, resolveDisputeRequest{Decision: "reject"})
	if again.Code != http.StatusConflict {
		test.Fatalf("expected 409 on double resolution, got %d", again.Code)
	}
}

func TestCancelDisputeOverHTTP(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	created := harness.request(test, http.MethodPost, "/api/claims", sellerID, claimRequest{TurnoverID: "turnover-1"})
	claimID := decodeBody(test, created)["claim"].(map[string]any)["claim_id"].(string)
	opened := harness.request(test, http.MethodPost, "/api/disputes", rivalID, openDisputeRequest{ClaimID: claimID})
	disputeID := decodeBody(test, opened)["dispute"].(map[string]any)["dispute_id"].(string)

	foreign := harness.request(test, http.MethodPost, "/api/disputes/"+disputeID+"/cancel", sellerID, nil)
	if foreign.Code != http.StatusForbidden {
		test.Fatalf("expected non-opener cancel forbidden, got %d", foreign.Code)
	}
	cancelled := harness.request(test, http.MethodPost, "/api/disputes/"+disputeID+"/cancel", rivalID, nil)
	if cancelled.Code != http.StatusOK {
		test.Fatalf("cancel: %d: %s", cancelled.Code, cancelled.Body.String())
	}
}

func TestBalanceAndEntries(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	userID := mustUserID(test, sellerID)
	if _, err := harness.financeStore.InsertEntry(context.Background(), finance.EntryInput{
		UserID:         userID,
		Kind:           finance.EntryPool,
		AmountCents:    finance.AmountCents(1500),
		CreatedUnixUTC: testNowUnix - 10,
	}); err != nil {
		test.Fatalf("seed entry: %v", err)
	}

	balance := harness.request(test, http.MethodGet, "/api/balance", sellerID, nil)
	if balance.Code != http.StatusOK {
		test.Fatalf("balance: %d", balance.Code)
	}
	balanceBody := decodeBody(test, balance)["balance"].(map[string]any)
	if balanceBody["available_cents"].(float64) != 1500 {
		test.Fatalf("unexpected balance: %v", balanceBody)
	}

	entries := harness.request(test, http.MethodGet, "/api/entries?limit=5", sellerID, nil)
	if entries.Code != http.StatusOK {
		test.Fatalf("entries: %d", entries.Code)
	}
	listed := decodeBody(test, entries)["entries"].([]any)
	if len(listed) != 1 {
		test.Fatalf("expected one entry, got %d", len(listed))
	}
}

func TestWithdrawalLifecycleOverHTTP(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	userID := mustUserID(test, sellerID)
	if _, err := harness.financeStore.InsertEntry(context.Background(), finance.EntryInput{
		UserID:      userID,
		Kind:        finance.EntryPool,
		AmountCents: finance.AmountCents(5000),
	}); err != nil {
		test.Fatalf("seed entry: %v", err)
	}

	overdraft := harness.request(test, http.MethodPost, "/api/withdrawals", sellerID, withdrawalRequest{AmountCents: 9000, RequisitesRef: "card-77"})
	if overdraft.Code != http.StatusUnprocessableEntity {
		test.Fatalf("expected 422 on overdraft, got %d", overdraft.Code)
	}

	noRequisites := harness.request(test, http.MethodPost, "/api/withdrawals", sellerID, withdrawalRequest{AmountCents: 3000})
	if noRequisites.Code != http.StatusBadRequest {
		test.Fatalf("expected 400 without requisites, got %d", noRequisites.Code)
	}

	requested := harness.request(test, http.MethodPost, "/api/withdrawals", sellerID, withdrawalRequest{AmountCents: 3000, RequisitesRef: "card-77"})
	if requested.Code != http.StatusCreated {
		test.Fatalf("request withdrawal: %d: %s", requested.Code, requested.Body.String())
	}
	requestedBody := decodeBody(test, requested)["withdrawal"].(map[string]any)
	if requestedBody["requisites_ref"] != "card-77" {
		test.Fatalf("expected requisites ref echoed, got %v", requestedBody)
	}
	withdrawalID := requestedBody["withdrawal_id"].(string)

	sellerApprove := harness.request(test, http.MethodPost, "/api/withdrawals/"+withdrawalID+"/approve", sellerID, nil)
	if sellerApprove.Code != http.StatusForbidden {
		test.Fatalf("expected seller barred from review, got %d", sellerApprove.Code)
	}

	approved := harness.request(test, http.MethodPost, "/api/withdrawals/"+withdrawalID+"/approve", managerID, nil)
	if approved.Code != http.StatusOK {
		test.Fatalf("approve: %d: %s", approved.Code, approved.Body.String())
	}
	reapproved := harness.request(test, http.MethodPost, "/api/withdrawals/"+withdrawalID+"/approve", managerID, nil)
	if reapproved.Code != http.StatusConflict {
		test.Fatalf("expected 409 on double approval, got %d", reapproved.Code)
	}
	paid := harness.request(test, http.MethodPost, "/api/withdrawals/"+withdrawalID+"/paid", managerID, nil)
	if paid.Code != http.StatusOK {
		test.Fatalf("mark paid: %d", paid.Code)
	}
}

func TestRatingsEndpoint(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodGet, "/api/ratings/2026-03", sellerID, nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("ratings: %d: %s", recorder.Code, recorder.Body.String())
	}
	standings := decodeBody(test, recorder)["standings"].([]any)
	first := standings[0].(map[string]any)
	if first["user_id"] != sellerID || first["global_rank"].(float64) != 1 {
		test.Fatalf("unexpected leaderboard: %v", standings)
	}
}

func TestSyncStatusEndpoint(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodGet, "/api/sync/status", sellerID, nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("sync status: %d", recorder.Code)
	}
	body := decodeBody(test, recorder)
	if body["feed"] != turnover.FeedName || body["rows_upserted"].(float64) != 3 {
		test.Fatalf("unexpected status payload: %v", body)
	}
}

func TestRatingsAllTimeEndpoint(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodGet, "/api/ratings/all", sellerID, nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("all-time ratings: %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(test, recorder)
	if body["period"] != "all" {
		test.Fatalf("unexpected period: %v", body)
	}
	standings := body["standings"].([]any)
	if len(standings) != 2 {
		test.Fatalf("expected full board, got %d rows", len(standings))
	}
}

func TestSyncRunEndpoint(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)

	sellerRun := harness.request(test, http.MethodPost, "/api/sync/run", sellerID, nil)
	if sellerRun.Code != http.StatusForbidden {
		test.Fatalf("expected seller barred from sync trigger, got %d", sellerRun.Code)
	}

	managerRun := harness.request(test, http.MethodPost, "/api/sync/run", managerID, nil)
	if managerRun.Code != http.StatusOK {
		test.Fatalf("sync run: %d: %s", managerRun.Code, managerRun.Body.String())
	}
	body := decodeBody(test, managerRun)
	if body["feed"] != turnover.FeedName || body["inserted"].(float64) != 1 {
		test.Fatalf("unexpected run payload: %v", body)
	}
	if harness.syncControl.runs != 1 {
		test.Fatalf("expected one feed pass, got %d", harness.syncControl.runs)
	}
}

func TestProfileListsCapabilities(test *testing.T) {
	test.Parallel()
	harness := newTestHarness(test)
	recorder := harness.request(test, http.MethodGet, "/api/profile", moderatorID, nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("profile: %d", recorder.Code)
	}
	body := decodeBody(test, recorder)
	if body["role"] != claims.RoleModerator.String() {
		test.Fatalf("unexpected profile: %v", body)
	}
}
