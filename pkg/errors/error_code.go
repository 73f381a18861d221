package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidBar           ErrorCode = 103
	ErrCodeInvalidPeriod        ErrorCode = 104
	ErrCodeInvalidRiskInput     ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106
	ErrCodeInvalidVersion       ErrorCode = 107

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound   ErrorCode = 200
	ErrCodeEmptyRange     ErrorCode = 201
	ErrCodeQueryFailed    ErrorCode = 202
	ErrCodeStoreFailed    ErrorCode = 203
	ErrCodeDataSourceGone ErrorCode = 204

	// Calendar/Config errors (300-399)
	ErrCodeStaleConfig     ErrorCode = 300
	ErrCodeNoTradingDay    ErrorCode = 301
	ErrCodeOutsideCalendar ErrorCode = 302

	// Strategy errors (400-499)
	ErrCodeStrategyRule      ErrorCode = 400
	ErrCodeRuleNotRegistered ErrorCode = 401
	ErrCodeRuleVersionClash  ErrorCode = 402
	ErrCodeEngineNotWaiting  ErrorCode = 403
	ErrCodeEngineCancelled   ErrorCode = 404
	ErrCodeRuleConfigError   ErrorCode = 405

	// Trading errors (500-599)
	ErrCodeOrderState        ErrorCode = 500
	ErrCodeOrderNotFound     ErrorCode = 501
	ErrCodeBracketMismatch   ErrorCode = 502
	ErrCodeVenueRejected     ErrorCode = 503
	ErrCodePositionUncovered ErrorCode = 504

	// Backtest errors (600-699)
	ErrCodeBacktestInitFailed ErrorCode = 600
	ErrCodeBacktestNoData     ErrorCode = 601
	ErrCodeBacktestNoStrategy ErrorCode = 602
	ErrCodeBacktestStalled    ErrorCode = 603
)
