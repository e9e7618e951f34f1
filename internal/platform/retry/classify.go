package retry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sashabaranov/go-openai"

	apperrors "github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

// Postgres SQLSTATE classes.
const (
	sqlClassConnection    = "08"
	sqlClassData          = "22"
	sqlClassIntegrity     = "23"
	sqlClassTxRollback    = "40"
	sqlClassResources     = "53"
	sqlClassObjectState   = "55"
	sqlClassOperator      = "57"
	sqlClassSyntaxOrParam = "42"
	sqlStateLockNotAvail  = "55P03"
)

var permanentSentinels = []error{
	context.Canceled,
	apperrors.ErrInvalidInput,
	apperrors.ErrInvalidID,
	apperrors.ErrMissingField,
	apperrors.ErrSchemaValidation,
	apperrors.ErrEmptyResponse,
	apperrors.ErrMalformedCustomID,
	apperrors.ErrMalformedLine,
	apperrors.ErrNotFound,
	apperrors.ErrBudgetExceeded,
}

// IsRetryable is the default classifier: input, schema, SQL statement and integrity
// faults are permanent; everything else (network, timeouts, rate limits, 5xx) retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if isPermanentInput(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch sqlClass(pgErr.Code) {
		case sqlClassData, sqlClassIntegrity, sqlClassSyntaxOrParam:
			return false
		}
	}

	if status, ok := providerStatus(err); ok {
		return retryableHTTPStatus(status)
	}

	return true
}

// IsRetryableDB is stricter: only connection loss, serialization/deadlock rollbacks,
// resource exhaustion and lock contention are retried.
func IsRetryableDB(err error) bool {
	if err == nil || isPermanentInput(err) || errors.Is(err, pgx.ErrNoRows) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == sqlStateLockNotAvail {
			return true
		}

		switch sqlClass(pgErr.Code) {
		case sqlClassConnection, sqlClassTxRollback, sqlClassResources, sqlClassOperator:
			return true
		default:
			return false
		}
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	return IsRetryable(err)
}

// IsRetryableFile treats every decode or missing-file fault as permanent; only
// transport failures are retried.
func IsRetryableFile(err error) bool {
	if err == nil || isPermanentInput(err) {
		return false
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}

	return IsRetryable(err)
}

func isPermanentInput(err error) bool {
	for _, target := range permanentSentinels {
		if errors.Is(err, target) {
			return true
		}
	}

	var parseFailure *apperrors.ParseFailure
	if errors.As(err, &parseFailure) {
		return true
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}

	var numErr *strconv.NumError

	return errors.As(err, &numErr)
}

func providerStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}

	return 0, false
}

func retryableHTTPStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status == http.StatusConflict:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func sqlClass(code string) string {
	if len(code) < 2 {
		return ""
	}

	return strings.ToUpper(code[:2])
}
