package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:  "Required field is missing",
	CodeInvalidInput:   "Invalid input provided",
	CodeInvalidFormat:  "Invalid data format",
	CodeInvalidState:   "Invalid state for this operation",
	CodeNotFound:       "Resource not found",
	CodeInvalidHash:    "Invalid transaction hash",
	CodeInvalidAddress: "Invalid ledger address",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeServiceTimeout:     "Service request timeout",
	CodeServiceUnavailable: "Service temporarily unavailable",
	CodeRateLimitExceeded:  "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Provider registry
	CodeDuplicateProvider: "Provider with this name is already registered",
	CodeUnknownProvider:   "No provider registered under this name",

	// Connection management
	CodeNoHealthyProvider:    "No healthy provider available",
	CodeAllProvidersFailed:   "All providers failed during connection attempt",
	CodeMaxReconnectAttempts: "Maximum reconnect attempts exceeded",
	CodeNotConnected:         "Not connected to any provider, retry later",
	CodeProviderProbeFailed:  "Provider health probe failed",
	CodeSubscribeFailed:      "Failed to subscribe to ledger events",
	CodeRPCError:             "Ledger RPC call failed",

	// Scoring
	CodeScoreUnavailable: "Credit score cannot be computed for this address",

	// Circuit breaker errors
	CodeCircuitOpen: "Circuit breaker is open",
}
