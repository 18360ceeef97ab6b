// Package errs defines the closed error taxonomy shared by every
// component. Each surfaced error carries a stable code, a kind, a
// severity, retriability and actionability flags, a human
// recommendation, and a structured context for logging.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by its failure domain.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNetwork           Kind = "network"
	KindSystem            Kind = "system"
	KindAuth              Kind = "auth"
)

// Severity grades operational impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Code is a stable machine-readable error code. The set is closed:
// components map their failures onto these codes and nothing else.
type Code string

const (
	InvalidSignalFormat           Code = "INVALID_SIGNAL_FORMAT"
	InvalidPriceLevels            Code = "INVALID_PRICE_LEVELS"
	SignalExpired                 Code = "SIGNAL_EXPIRED"
	TokenNotFound                 Code = "TOKEN_NOT_FOUND"
	UnsupportedNetwork            Code = "UNSUPPORTED_NETWORK"
	SafeNotDeployed               Code = "SAFE_NOT_DEPLOYED"
	SafeInvalidConfiguration      Code = "SAFE_INVALID_CONFIGURATION"
	SafeInsufficientBalance       Code = "SAFE_INSUFFICIENT_BALANCE"
	InsufficientStablecoinBalance Code = "INSUFFICIENT_STABLECOIN_BALANCE"
	InvalidPositionPercentage     Code = "INVALID_POSITION_PERCENTAGE"
	PositionSizeTooSmall          Code = "POSITION_SIZE_TOO_SMALL"
	PositionSizeTooLarge          Code = "POSITION_SIZE_TOO_LARGE"
	SwapQuoteFailed               Code = "SWAP_QUOTE_FAILED"
	SwapExecutionFailed           Code = "SWAP_EXECUTION_FAILED"
	InsufficientLiquidity         Code = "INSUFFICIENT_LIQUIDITY"
	SlippageTooHigh               Code = "SLIPPAGE_TOO_HIGH"
	RPCConnectionFailed           Code = "RPC_CONNECTION_FAILED"
	NetworkCongestion             Code = "NETWORK_CONGESTION"
	TransactionTimeout            Code = "TRANSACTION_TIMEOUT"
	PriceDataUnavailable          Code = "PRICE_DATA_UNAVAILABLE"
	APIRateLimited                Code = "API_RATE_LIMITED"
	ConfigurationError            Code = "CONFIGURATION_ERROR"
	SystemShutdown                Code = "SYSTEM_SHUTDOWN"
	UnknownError                  Code = "UNKNOWN_ERROR"
)

// classification is the static metadata for a code.
type classification struct {
	kind       Kind
	severity   Severity
	retriable  bool
	actionable bool
}

var classifications = map[Code]classification{
	InvalidSignalFormat:           {KindValidation, SeverityLow, false, true},
	InvalidPriceLevels:            {KindValidation, SeverityLow, false, true},
	SignalExpired:                 {KindValidation, SeverityLow, false, true},
	TokenNotFound:                 {KindNotFound, SeverityMedium, false, true},
	UnsupportedNetwork:            {KindValidation, SeverityMedium, false, true},
	SafeNotDeployed:               {KindNotFound, SeverityMedium, false, true},
	SafeInvalidConfiguration:      {KindValidation, SeverityHigh, false, true},
	SafeInsufficientBalance:       {KindInsufficientFunds, SeverityMedium, false, true},
	InsufficientStablecoinBalance: {KindInsufficientFunds, SeverityMedium, false, true},
	InvalidPositionPercentage:     {KindValidation, SeverityLow, false, true},
	PositionSizeTooSmall:          {KindValidation, SeverityLow, false, true},
	PositionSizeTooLarge:          {KindValidation, SeverityLow, false, true},
	SwapQuoteFailed:               {KindNetwork, SeverityMedium, true, false},
	SwapExecutionFailed:           {KindSystem, SeverityHigh, false, false},
	InsufficientLiquidity:         {KindNetwork, SeverityMedium, false, true},
	SlippageTooHigh:               {KindValidation, SeverityMedium, false, true},
	RPCConnectionFailed:           {KindNetwork, SeverityHigh, true, false},
	NetworkCongestion:             {KindNetwork, SeverityLow, true, false},
	TransactionTimeout:            {KindNetwork, SeverityHigh, true, false},
	PriceDataUnavailable:          {KindNetwork, SeverityMedium, true, false},
	APIRateLimited:                {KindSystem, SeverityMedium, true, false},
	ConfigurationError:            {KindSystem, SeverityCritical, false, true},
	SystemShutdown:                {KindSystem, SeverityHigh, false, false},
	UnknownError:                  {KindSystem, SeverityHigh, false, false},
}

// Context carries structured identifiers for logs and user-visible
// rejections. Empty fields are omitted from output.
type Context struct {
	Service       string
	Operation     string
	TradeID       string
	SignalID      string
	WalletAddress string
	NetworkKey    string
	Symbol        string
}

// Error is the single error type surfaced across component boundaries.
type Error struct {
	Code           Code
	Kind           Kind
	Severity       Severity
	Retriable      bool
	Actionable     bool
	Message        string
	Recommendation string
	Ctx            Context
	cause          error
}

// New creates an Error for code with a formatted message. Kind,
// severity and flags are filled from the closed classification table;
// unknown codes are classified as UNKNOWN_ERROR.
func New(code Code, format string, args ...interface{}) *Error {
	cl, ok := classifications[code]
	if !ok {
		code = UnknownError
		cl = classifications[UnknownError]
	}
	return &Error{
		Code:       code,
		Kind:       cl.kind,
		Severity:   cl.severity,
		Retriable:  cl.retriable,
		Actionable: cl.actionable,
		Message:    fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error for code wrapping a cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	e := New(code, format, args...)
	e.cause = cause
	return e
}

// WithRecommendation attaches a human next-step to the error.
func (e *Error) WithRecommendation(rec string) *Error {
	e.Recommendation = rec
	return e
}

// WithContext attaches structured identifiers. Non-empty fields of ctx
// overwrite the existing ones.
func (e *Error) WithContext(ctx Context) *Error {
	if ctx.Service != "" {
		e.Ctx.Service = ctx.Service
	}
	if ctx.Operation != "" {
		e.Ctx.Operation = ctx.Operation
	}
	if ctx.TradeID != "" {
		e.Ctx.TradeID = ctx.TradeID
	}
	if ctx.SignalID != "" {
		e.Ctx.SignalID = ctx.SignalID
	}
	if ctx.WalletAddress != "" {
		e.Ctx.WalletAddress = ctx.WalletAddress
	}
	if ctx.NetworkKey != "" {
		e.Ctx.NetworkKey = ctx.NetworkKey
	}
	if ctx.Symbol != "" {
		e.Ctx.Symbol = ctx.Symbol
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Summary renders the compact user-visible form: code, recommendation,
// and context (symbol, network, short wallet suffix, signal id). Raw
// causes are excluded.
func (e *Error) Summary() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Recommendation != "" {
		b.WriteString(" — ")
		b.WriteString(e.Recommendation)
	}
	var parts []string
	if e.Ctx.Symbol != "" {
		parts = append(parts, e.Ctx.Symbol)
	}
	if e.Ctx.NetworkKey != "" {
		parts = append(parts, e.Ctx.NetworkKey)
	}
	if e.Ctx.WalletAddress != "" {
		parts = append(parts, "…"+shortSuffix(e.Ctx.WalletAddress))
	}
	if e.Ctx.SignalID != "" {
		parts = append(parts, e.Ctx.SignalID)
	}
	if len(parts) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("]")
	}
	return b.String()
}

func shortSuffix(addr string) string {
	if len(addr) <= 6 {
		return addr
	}
	return addr[len(addr)-6:]
}

// CodeOf extracts the taxonomy code from any error chain. Errors that
// never passed through the taxonomy map to UNKNOWN_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return UnknownError
}

// IsRetriable reports whether the error chain carries a retriable code.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable
	}
	return false
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
