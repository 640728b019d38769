package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidFrequency     ErrorCode = 102
	ErrCodeInvalidDateRange     ErrorCode = 103
	ErrCodeMissingParameter     ErrorCode = 104
	ErrCodeInvalidDocument      ErrorCode = 105

	// Indicator errors (200-299)
	ErrCodeIndicatorNotFound      ErrorCode = 200
	ErrCodeIndicatorAlreadyExists ErrorCode = 201
	ErrCodeIndicatorCalculation   ErrorCode = 202
	ErrCodeSignalRuleNotFound     ErrorCode = 203

	// Market data errors (300-399)
	ErrCodeHistoryFetchFailed ErrorCode = 300
	ErrCodeNoDataForBar       ErrorCode = 301
	ErrCodeExchangeTimeout    ErrorCode = 302
	ErrCodeRateLimited        ErrorCode = 303
	ErrCodeExchangeAuth       ErrorCode = 304
	ErrCodeBundleNotIngested  ErrorCode = 305

	// Runtime errors (400-499)
	ErrCodeRuntimeSetupFailed ErrorCode = 400
	ErrCodeRuntimeIteration   ErrorCode = 401
	ErrCodeRunKilled          ErrorCode = 402
	ErrCodeRunShutdown        ErrorCode = 403
	ErrCodeStatePersistence   ErrorCode = 404

	// Order errors (500-599)
	ErrCodeOrderFailed      ErrorCode = 500
	ErrCodeInsufficientCash ErrorCode = 501
	ErrCodeNoOpenPosition   ErrorCode = 502
	ErrCodeInvalidOrderSize ErrorCode = 503

	// Job/queue errors (600-699)
	ErrCodeJobNotFound         ErrorCode = 600
	ErrCodeDuplicateJob        ErrorCode = 601
	ErrCodeQueueUnavailable    ErrorCode = 602
	ErrCodeWorkerNotFound      ErrorCode = 603
	ErrCodeJobRetriesExhausted ErrorCode = 604
)

// Kind classifies an error for retry and termination decisions. The job
// lifecycle controller switches on Kind, never on concrete error types.
type Kind int

const (
	// KindUnclassified is the default for errors with no explicit kind.
	// Retried at the job level up to the configured maximum.
	KindUnclassified Kind = iota
	// KindTransient marks recoverable data errors (timeouts, rate limits).
	// Retried locally with bounded backoff; the bar is skipped if exhausted.
	KindTransient
	// KindMissingData marks bars with no price snapshot. Skipped, never retried.
	KindMissingData
	// KindCredential marks authentication/exchange-credential failures.
	// Fatal to the run; the user is notified and the job is not retried.
	KindCredential
	// KindKill marks an intentional kill-triggered stop. Not a failure.
	KindKill
	// KindShutdown marks an orchestrator-driven forced shutdown. The job is
	// requeued because the process is being recycled, not failing.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMissingData:
		return "missing_data"
	case KindCredential:
		return "credential"
	case KindKill:
		return "kill"
	case KindShutdown:
		return "shutdown"
	default:
		return "unclassified"
	}
}
