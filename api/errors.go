package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"trueballot/log"
)

// Error is the JSON error envelope returned by every handler. Codes in the
// 40xx range are the caller's fault, 50xx the server's. Codes are stable;
// never renumber an existing one.
type Error struct {
	Code       int    `json:"code"`
	HTTPstatus int    `json:"-"`
	Err        error  `json:"-"`
	Data       string `json:"error"`
}

func (e Error) Error() string {
	return e.Err.Error()
}

// Write sends the error as a JSON response.
func (e Error) Write(w http.ResponseWriter) {
	e.Data = e.Err.Error()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		log.Warnw("failed to write error response", "error", err)
	}
}

// WithErr returns a copy of the error with extra detail appended.
func (e Error) WithErr(err error) Error {
	e.Err = fmt.Errorf("%w: %v", e.Err, err)
	return e
}

var (
	ErrMalformedBody       = Error{Code: 4001, HTTPstatus: http.StatusBadRequest, Err: errors.New("malformed JSON body")}
	ErrUnauthorized        = Error{Code: 4002, HTTPstatus: http.StatusUnauthorized, Err: errors.New("unauthorized")}
	ErrAlreadyVoted        = Error{Code: 4003, HTTPstatus: http.StatusConflict, Err: errors.New("you have already voted for this position")}
	ErrInvalidState        = Error{Code: 4004, HTTPstatus: http.StatusConflict, Err: errors.New("operation not permitted in the current election state")}
	ErrReceiptNotFound     = Error{Code: 4005, HTTPstatus: http.StatusNotFound, Err: errors.New("receipt not found")}
	ErrCandidateNotFound   = Error{Code: 4006, HTTPstatus: http.StatusBadRequest, Err: errors.New("candidate not found for this position")}
	ErrNoBallots           = Error{Code: 4007, HTTPstatus: http.StatusBadRequest, Err: errors.New("no sealed ballots found to tally")}
	ErrInvalidShards       = Error{Code: 4008, HTTPstatus: http.StatusBadRequest, Err: errors.New("key shards do not reassemble into a valid private key")}
	ErrElectionKeyMissing  = Error{Code: 4009, HTTPstatus: http.StatusConflict, Err: errors.New("election public key is missing")}
	ErrResultsNotFound     = Error{Code: 4010, HTTPstatus: http.StatusNotFound, Err: errors.New("no tally results available")}
	ErrMalformedParam      = Error{Code: 4011, HTTPstatus: http.StatusBadRequest, Err: errors.New("malformed parameter")}

	ErrGenericInternal = Error{Code: 5001, HTTPstatus: http.StatusInternalServerError, Err: errors.New("internal server error")}
	ErrPartialReset    = Error{Code: 5002, HTTPstatus: http.StatusInternalServerError, Err: errors.New("election reset completed with failures")}
)
