package claims

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing claim or dispute operation.
type OperationLog struct {
	Operation  string
	UserID     UserID
	TurnoverID TurnoverID
	ClaimID    ClaimID
	DisputeID  DisputeID
	Decision   DisputeDecision
	Status     string
	Error      error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAccruer wires the bonus accrual hook invoked after ownership changes.
func WithAccruer(accruer Accruer) ServiceOption {
	return func(service *Service) {
		service.accruer = accruer
	}
}
