package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"courier/apperrors"
	"courier/models"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeInvalidParticipants, apperrors.CodeInvalidContent:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error": {"code", "message"}}. Internal errors
// are logged and their message is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)

	detail := errorDetail{Code: code, Message: "internal server error"}
	var appErr *apperrors.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		detail.Message = appErr.Message
	} else {
		detail.Code = apperrors.CodeInternal
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

// maxBodyBytes caps request bodies; message content is far smaller.
const maxBodyBytes = 64 << 10

var (
	errInvalidBody = apperrors.InvalidArg("invalid request body")
	errBodyTooBig  = apperrors.InvalidArg("request body too large")
	errInvalidID   = apperrors.InvalidArg("invalid id")
	errInvalidPage = apperrors.InvalidArg("skip must be >= 0 and limit between 1 and 100")
)

func limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	limitBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errBodyTooBig
		}
		return errInvalidBody
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// pageFromQuery reads skip and limit. Missing values take the defaults.
func pageFromQuery(r *http.Request) (models.Page, error) {
	page := models.Page{Limit: models.DefaultPageLimit}
	q := r.URL.Query()
	if s := q.Get("skip"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return page, errInvalidPage
		}
		page.Offset = v
	}
	if l := q.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > models.MaxPageLimit {
			return page, errInvalidPage
		}
		page.Limit = v
	}
	return page, nil
}
