package errors

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalServerError represents a generic internal server error.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"
	// GeneralBadRequestError represents a generic bad request error.
	GeneralBadRequestError ErrorCode = "general_bad_request_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"
	// GeneralUnauthorizedError represents a generic unauthorized error.
	GeneralUnauthorizedError ErrorCode = "general_unauthorized_error"
	// GeneralRepositoryError represents a generic repository error.
	GeneralRepositoryError ErrorCode = "general_repository_error"

	// LedgerClientOrderIDError represents a client order id that cannot be decoded.
	LedgerClientOrderIDError ErrorCode = "ledger_client_order_id_error"
	// LedgerMemberNotFoundError represents a fill whose member does not exist locally.
	LedgerMemberNotFoundError ErrorCode = "ledger_member_not_found_error"
	// LedgerOrderNotFoundError represents a fill whose order does not exist locally.
	LedgerOrderNotFoundError ErrorCode = "ledger_order_not_found_error"
	// LedgerDuplicateTradeError represents a trade insert that hit the external id unique constraint.
	LedgerDuplicateTradeError ErrorCode = "ledger_duplicate_trade_error"
	// LedgerNegativeBalanceError represents an account mutation that would go negative.
	LedgerNegativeBalanceError ErrorCode = "ledger_negative_balance_error"
	// LedgerForeignBrokerError represents a fill produced by another deployment sharing the exchange account.
	LedgerForeignBrokerError ErrorCode = "ledger_foreign_broker_error"

	// ConnectorUnavailableError represents an unreachable external exchange API.
	ConnectorUnavailableError ErrorCode = "connector_unavailable_error"
	// ConnectorResponseError represents a rejected or malformed exchange response.
	ConnectorResponseError ErrorCode = "connector_response_error"

	// HubUnknownOperationError represents an unknown client operation on the wire.
	HubUnknownOperationError ErrorCode = "hub_unknown_operation_error"
	// HubMalformedMessageError represents a malformed client subscription message.
	HubMalformedMessageError ErrorCode = "hub_malformed_message_error"

	// SessionResolveError represents a session token that could not be resolved to a member.
	SessionResolveError ErrorCode = "session_resolve_error"

	// RedisConfigError represents an error when the Redis configuration is invalid or nil.
	RedisConfigError ErrorCode = "redis_config_error"
	// RedisConnectionError represents an error when connecting to Redis.
	RedisConnectionError ErrorCode = "redis_connection_error"
	// RedisGetError represents an error when getting a value from Redis.
	RedisGetError ErrorCode = "redis_get_error"
	// RedisSetError represents an error when setting a value in Redis.
	RedisSetError ErrorCode = "redis_set_error"
	// RedisDelError represents an error when deleting a value from Redis.
	RedisDelError ErrorCode = "redis_del_error"
	// RedisPingError represents an error when pinging Redis.
	RedisPingError ErrorCode = "redis_pinging_error"
)

// Severity represents the severity level of an error.
type Severity string

const (
	// SeverityCritical indicates a critical error that requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityHigh indicates a high severity error that should be addressed promptly.
	SeverityHigh Severity = "high"
	// SeverityMedium indicates a medium severity error that should be addressed in due course.
	SeverityMedium Severity = "medium"
	// SeverityLow indicates a low severity error that can be addressed at a later time.
	SeverityLow Severity = "low"
)

// Category represents the category of an error.
type Category string

const (
	// CategoryDatabase indicates an error related to database operations.
	CategoryDatabase Category = "database"
	// CategoryNetwork indicates an error related to network operations.
	CategoryNetwork Category = "network"
	// CategoryValidation indicates an error related to validation of input data.
	CategoryValidation Category = "validation"
	// CategoryLedgerIntegrity indicates an error that violates ledger consistency.
	CategoryLedgerIntegrity Category = "ledger_integrity"
	// CategoryExternal indicates an error related to external services or APIs.
	CategoryExternal Category = "external"
	// CategoryUnknown indicates an unknown error category.
	CategoryUnknown Category = "unknown"
)

// BaseError is an `error` type containing an array of ErrorDetails.
type BaseError struct {
	details []*ErrorDetails
}

// NewBaseError create BaseError with ErrorDetails
func NewBaseError(details ...*ErrorDetails) *BaseError {
	return &BaseError{details: details}
}

// AddErrorDetails add more ErrorDetails to BaseError
func (b *BaseError) AddErrorDetails(errors ...*ErrorDetails) {
	b.details = append(b.details, errors...)
}

// GetDetails get array ErrorDetails on BaseError
func (b *BaseError) GetDetails() []*ErrorDetails {
	return b.details
}

// Error implement error interface
func (b *BaseError) Error() string {
	buff := bytes.NewBufferString("")

	buff.WriteString("Error on\n")
	for _, err := range b.details {
		buff.WriteString("code: ")
		buff.WriteString(err.Code)
		buff.WriteString("; error: ")
		buff.WriteString(err.Error())
		buff.WriteString("; field: ")
		buff.WriteString(err.Field)
		buff.WriteString("; object: ")
		if err.Object != nil {
			buff.WriteString(reflect.TypeOf(err.Object).String())
		}
		buff.WriteString("\n")
	}

	return strings.TrimSpace(buff.String())
}

// PrependFields prepend all field on ErrorDetails with given prefix. Will skip ErrorDetail without field
func (b *BaseError) PrependFields(prefix string) {
	for _, d := range b.GetDetails() {
		if d.Field == "" {
			continue
		}
		d.Field = fmt.Sprintf("%s%s", prefix, d.Field)
	}
}
