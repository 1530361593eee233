package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField  Code = "REQUIRED_FIELD"
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeInvalidFormat  Code = "INVALID_FORMAT"
	CodeInvalidState   Code = "INVALID_STATE"
	CodeNotFound       Code = "NOT_FOUND"
	CodeInvalidHash    Code = "INVALID_HASH"
	CodeInvalidAddress Code = "INVALID_ADDRESS"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Ledger connection error codes
const (
	// Provider registry
	CodeDuplicateProvider Code = "DUPLICATE_PROVIDER"
	CodeUnknownProvider   Code = "UNKNOWN_PROVIDER"

	// Connection management
	CodeNoHealthyProvider    Code = "NO_HEALTHY_PROVIDER"
	CodeAllProvidersFailed   Code = "ALL_PROVIDERS_FAILED"
	CodeMaxReconnectAttempts Code = "MAX_RECONNECT_ATTEMPTS_EXCEEDED"
	CodeNotConnected         Code = "NOT_CONNECTED"
	CodeProviderProbeFailed  Code = "PROVIDER_PROBE_FAILED"
	CodeSubscribeFailed      Code = "SUBSCRIBE_FAILED"
	CodeRPCError             Code = "RPC_ERROR"

	// Scoring
	CodeScoreUnavailable Code = "SCORE_UNAVAILABLE"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
