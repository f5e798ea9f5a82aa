package constant

import "errors"

// Sentinel errors returned by the core substrate. They are compared with
// errors.Is and translated into the typed error hierarchy in pkg/errors.go
// at the service boundary; nothing below this package should format a
// user-facing message.
var (
	// Generic request/response shape errors, independent of any component.
	ErrInternalServer               = errors.New("0000")
	ErrEntityNotFound                = errors.New("0001")
	ErrMissingFieldsInRequest        = errors.New("0002")
	ErrUnmodifiableField             = errors.New("0003")
	ErrActionNotPermitted            = errors.New("0004")
	ErrBadRequest                    = errors.New("0005")
	ErrUnexpectedFieldsInTheRequest  = errors.New("0006")
	ErrTableNotRegistered     = errors.New("0010")
	ErrTableOwnedByOther      = errors.New("0011")
	ErrTopicHasNoProducer     = errors.New("0012")
	ErrTopicProducerConflict  = errors.New("0013")
	ErrRegistryCycleDetected  = errors.New("0014")

	// Outbox Store / Dispatcher (spec §4.2, §4.3).
	ErrDuplicateEventID          = errors.New("0020")
	ErrOutboxRowQuarantined      = errors.New("0021")
	ErrOutboxRowAlreadyPublished = errors.New("0022")
	ErrOutboxLeaseExpired        = errors.New("0023")
	ErrOutboxLeaseHeldElsewhere  = errors.New("0024")

	// Event Log Abstraction (spec §4.4).
	ErrPublishNotAcked     = errors.New("0030")
	ErrPartitionKeyMissing = errors.New("0031")

	// Consumer Runtime / Projection Engine (spec §4.5, §4.6).
	ErrOffsetRegression             = errors.New("0040")
	ErrProjectionRebuildInProgress  = errors.New("0041")
	ErrStaleProjectionUpdateSkipped = errors.New("0129")
	ErrDeadLettered                 = errors.New("0043")

	// RPC Client Pool (spec §4.7).
	ErrMissingDeadline     = errors.New("0050")
	ErrRetryBudgetExhausted = errors.New("0051")
	ErrCircuitOpen          = errors.New("0052")
	ErrBackpressureRejected = errors.New("0053")

	// Metadata limits, shared by outbox payload and projection row validation.
	ErrMetadataKeyLengthExceeded   = errors.New("0060")
	ErrMetadataValueLengthExceeded = errors.New("0061")
)
