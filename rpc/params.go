package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"vitrine/crypto"
	"vitrine/gateway/middleware"
	"vitrine/native/ledger"

	coreerrors "vitrine/core/errors"
)

var errMissingParams = errors.New("params object required")

// decodeParams decodes the single object parameter into dst. Unknown fields
// are rejected.
func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return errMissingParams
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalParams tolerates an empty params list.
func decodeOptionalParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	return decodeParams(req, dst)
}

func parseAddress(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, value)
	}
	if _, err := ledger.ParseAmount(amount); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return amount, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// requireCaller returns the authenticated caller or writes an error.
func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request, req *RPCRequest) (crypto.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || caller.IsZero() {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "authenticated caller required", nil)
		return crypto.Address{}, false
	}
	return caller, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request, req *RPCRequest) (crypto.Address, bool) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return crypto.Address{}, false
	}
	if !middleware.HasScope(r.Context(), s.adminScope) {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "admin scope required", s.adminScope)
		return crypto.Address{}, false
	}
	return caller, true
}

func invalidParams(w http.ResponseWriter, req *RPCRequest, err error) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
}

// writeDomainError maps a categorised core error onto an HTTP status and
// JSON-RPC code.
func writeDomainError(w http.ResponseWriter, req *RPCRequest, err error) {
	status, code := errorStatus(err)
	writeError(w, status, req.ID, code, err.Error(), coreerrors.KindOf(err).String())
}

func errorStatus(err error) (int, int) {
	switch coreerrors.KindOf(err) {
	case coreerrors.KindValidation:
		return http.StatusBadRequest, codeInvalidParams
	case coreerrors.KindAuthorization:
		return http.StatusForbidden, codeUnauthorized
	case coreerrors.KindConflict:
		return http.StatusConflict, codeConflict
	case coreerrors.KindResource:
		return http.StatusUnprocessableEntity, codeInsufficient
	case coreerrors.KindNotFound:
		return http.StatusNotFound, codeNotFound
	case coreerrors.KindUnavailable:
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
