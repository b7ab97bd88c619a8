package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrRouteNotFound        = errors.New("route not found")
	ErrHandlerIsNil         = errors.New("handler is nil")
)

var (
	ErrCacheKeyEmpty         = errors.New("cache key empty")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheOperationFailed  = errors.New("cache operation failed")
)

var (
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobExists         = errors.New("cron job already exists")
)

var (
	ErrLedgerNotRunning   = errors.New("ledger not running")
	ErrLedgerFlushFailed  = errors.New("ledger flush failed")
	ErrLedgerStoreInvalid = errors.New("ledger store type unknown")
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrPostIDEmpty        = errors.New("post id empty")
	ErrVoteInvalid        = errors.New("vote direction invalid")
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamBadStatus   = errors.New("upstream bad status")
	ErrUpstreamBadPayload  = errors.New("upstream bad payload")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker open")
)

var (
	ErrAuthTokenInvalid    = errors.New("auth token invalid")
	ErrAuthTokenExpired    = errors.New("auth token expired")
	ErrVerifierTypeUnknown = errors.New("verifier type unknown")
)

var (
	ErrEventsNotRunning   = errors.New("events not running")
	ErrEventPublishFailed = errors.New("event publish failed")
	ErrWebhookNotFound    = errors.New("webhook not found")
	ErrWebhookURLInvalid  = errors.New("webhook url invalid")
)

var (
	ErrReconcileConfirm    = errors.New("mutation confirmation failed")
	ErrReconcileRolledBack = errors.New("mutation rolled back")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
