package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassificationClosure(t *testing.T) {
	// Every code has a classification; unknown codes collapse to
	// UNKNOWN_ERROR.
	codes := []Code{
		InvalidSignalFormat, InvalidPriceLevels, SignalExpired,
		TokenNotFound, UnsupportedNetwork,
		SafeNotDeployed, SafeInvalidConfiguration, SafeInsufficientBalance,
		InsufficientStablecoinBalance,
		InvalidPositionPercentage, PositionSizeTooSmall, PositionSizeTooLarge,
		SwapQuoteFailed, SwapExecutionFailed, InsufficientLiquidity, SlippageTooHigh,
		RPCConnectionFailed, NetworkCongestion, TransactionTimeout,
		PriceDataUnavailable, APIRateLimited,
		ConfigurationError, SystemShutdown, UnknownError,
	}
	for _, code := range codes {
		e := New(code, "boom")
		if e.Code != code {
			t.Errorf("code %s rewritten to %s", code, e.Code)
		}
		if e.Kind == "" || e.Severity == "" {
			t.Errorf("code %s missing classification", code)
		}
	}

	e := New(Code("MADE_UP"), "boom")
	if e.Code != UnknownError {
		t.Errorf("unknown code should map to UNKNOWN_ERROR, got %s", e.Code)
	}
}

func TestRetriability(t *testing.T) {
	if !New(RPCConnectionFailed, "x").Retriable {
		t.Error("RPC_CONNECTION_FAILED should be retriable")
	}
	if New(SwapExecutionFailed, "x").Retriable {
		t.Error("SWAP_EXECUTION_FAILED should not be retriable")
	}
	if !IsRetriable(fmt.Errorf("wrapped: %w", New(TransactionTimeout, "x"))) {
		t.Error("retriability should survive wrapping")
	}
	if IsRetriable(errors.New("plain")) {
		t.Error("plain errors are not retriable")
	}
}

func TestCodeOf_Wrapped(t *testing.T) {
	inner := New(TokenNotFound, "no FOO")
	wrapped := fmt.Errorf("resolver: %w", inner)
	if CodeOf(wrapped) != TokenNotFound {
		t.Errorf("expected TOKEN_NOT_FOUND through the chain, got %s", CodeOf(wrapped))
	}
	if CodeOf(errors.New("plain")) != UnknownError {
		t.Error("untyped errors should classify as UNKNOWN_ERROR")
	}
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("socket closed")
	e := Wrap(RPCConnectionFailed, cause, "read balance")
	if !errors.Is(e, cause) {
		t.Error("Wrap should preserve the cause for errors.Is")
	}
	if !strings.Contains(e.Error(), "socket closed") {
		t.Errorf("cause missing from message: %s", e.Error())
	}
}

func TestSummary_CompactContext(t *testing.T) {
	e := New(SafeNotDeployed, "no active wallet").
		WithRecommendation("deploy the wallet on ethereum").
		WithContext(Context{
			Symbol:        "FOO",
			NetworkKey:    "ethereum",
			WalletAddress: "0xAAAA000000000000000000000000000000000001",
			SignalID:      "sig-1",
		})
	s := e.Summary()

	for _, want := range []string{"SAFE_NOT_DEPLOYED", "FOO", "ethereum", "sig-1", "deploy the wallet"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q: %s", want, s)
		}
	}
	// Only the wallet suffix appears, never the full address.
	if strings.Contains(s, "0xAAAA0000000000000000") {
		t.Errorf("summary leaks full wallet address: %s", s)
	}
}
