package claims

const (
	operationClaim          = "claim"
	operationOpenDispute    = "open_dispute"
	operationCancelDispute  = "cancel_dispute"
	operationResolveDispute = "resolve_dispute"

	operationStatusOK       = "ok"
	operationStatusError    = "error"
	operationStatusDegraded = "degraded"
)
