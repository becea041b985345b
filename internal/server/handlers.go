package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chunkvault/internal/api"
	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
	"chunkvault/internal/transfer"
)

const connectivityMessage = "failed to connect to backing store"

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		if id := requestID(r); id != "" {
			fields = append(fields, "request_id", id)
		}
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = publicMessage(err)
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
	// public replaces the message of a 5xx response when set.
	public string
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func tooLarge(err error) error {
	return makeAPIError(http.StatusRequestEntityTooLarge, "request_too_large", ErrCodeRequestTooLarge, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

func storeUnreachable(err error) error {
	return apiError{
		status:  http.StatusInternalServerError,
		code:    "unavailable",
		errCode: ErrCodeStoreUnreachable,
		err:     err,
		public:  connectivityMessage,
	}
}

func publicMessage(err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.public != "" {
		return apiErr.public
	}
	return "internal error"
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// blobError classifies a store or transfer failure for the response.
func blobError(err error, id string) error {
	var apiErr apiError
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case blobstore.IsConnectivityError(err):
		return storeUnreachable(err)
	case errors.As(err, &maxBytesErr):
		return tooLarge(fmt.Errorf("request body exceeds %d bytes", maxBytesErr.Limit))
	case errors.Is(err, blobstore.ErrNotFound):
		return notFoundCode(fmt.Errorf("No file found with ID: %s", id), ErrCodeBlobNotFound)
	case errors.Is(err, blobstore.ErrInvalidID):
		return badRequestCode(fmt.Errorf("Invalid file_id: %s", id), ErrCodeInvalidID)
	case errors.Is(err, blobstore.ErrInvalidNamespace):
		return badRequestCode(err, ErrCodeInvalidNamespace)
	case errors.Is(err, transfer.ErrEmptyPayload):
		return badRequestCode(errors.New("No audio data received"), ErrCodeEmptyPayload)
	case errors.Is(err, transfer.ErrSourceRead), errors.Is(err, context.Canceled):
		return badRequestCode(errors.New("upload aborted before completion"), ErrCodeUploadAborted)
	case chunk.IsIntegrityError(err):
		return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeIntegrityFailure, err)
	default:
		return storeFailure(err)
	}
}

func (s *Server) writeBlobError(w http.ResponseWriter, r *http.Request, err error, id string) {
	err = blobError(err, id)
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

// namespace resolves the db/collection query pair against the defaults and
// opens a request-scoped handle.
func (s *Server) namespace(w http.ResponseWriter, r *http.Request) (blobstore.Namespace, bool) {
	query := r.URL.Query()
	db := strings.TrimSpace(query.Get("db"))
	if db == "" {
		db = s.opts.DefaultDatabase
	}
	collection := strings.TrimSpace(query.Get("collection"))
	if collection == "" {
		collection = s.opts.DefaultCollection
	}

	ns, err := s.backend.Namespace(r.Context(), db, collection)
	if err != nil {
		s.writeBlobError(w, r, err, "")
		return nil, false
	}
	return ns, true
}
