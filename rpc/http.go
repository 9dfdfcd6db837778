package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vitrine/core/events"
	"vitrine/gateway/middleware"
	"vitrine/native/common"
	"vitrine/native/market"
	"vitrine/observability"
	vitrineotel "vitrine/observability/otel"
	"vitrine/services/contentstore"
	"vitrine/services/persona"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeConflict       = -32030
	codeInsufficient   = -32031
	codeNotFound       = -32040
	codeUnavailable    = -32050
)

// DefaultAdminScope is the token scope required by admin_* methods.
const DefaultAdminScope = "admin"

// Config wires the server to the marketplace and its collaborators.
type Config struct {
	Market     *market.Marketplace
	Processor  persona.Processor
	Content    contentstore.Store
	Bus        *events.Bus
	Pauses     *common.Pauses
	AdminScope string
	Logger     *slog.Logger
}

// Server serves the marketplace JSON-RPC surface.
type Server struct {
	market     *market.Marketplace
	processor  persona.Processor
	content    contentstore.Store
	bus        *events.Bus
	pauses     *common.Pauses
	adminScope string
	logger     *slog.Logger
}

// NewServer constructs a JSON-RPC server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scope := strings.TrimSpace(cfg.AdminScope)
	if scope == "" {
		scope = DefaultAdminScope
	}
	return &Server{
		market:     cfg.Market,
		processor:  cfg.Processor,
		content:    cfg.Content,
		bus:        cfg.Bus,
		pauses:     cfg.Pauses,
		adminScope: scope,
		logger:     logger,
	}
}

// Handler returns the POST /rpc handler.
func (s *Server) Handler() http.Handler { return http.HandlerFunc(s.handle) }

// EventsHandler returns the GET /ws/events handler.
func (s *Server) EventsHandler() http.Handler { return http.HandlerFunc(s.handleEventsWS) }

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"market_getProduct":         s.handleMarketGetProduct,
		"market_listActiveProducts": s.handleMarketListActiveProducts,
		"market_listSellerProducts": s.handleMarketListSellerProducts,
		"market_getStats":           s.handleMarketGetStats,
		"market_getReceipt":         s.handleMarketGetReceipt,
		"market_getReceipts":        s.handleMarketGetReceipts,
		"market_listProduct":        s.handleMarketListProduct,
		"market_updateProduct":      s.handleMarketUpdateProduct,
		"market_getMetadata":        s.handleMarketGetMetadata,
		"market_purchase":           s.handleMarketPurchase,
		"ledger_getBalance":         s.handleLedgerGetBalance,
		"ledger_withdraw":           s.handleLedgerWithdraw,
		"identity_getReputation":    s.handleIdentityGetReputation,
		"identity_getPersonaHash":   s.handleIdentityGetPersonaHash,
		"identity_getStats":         s.handleIdentityGetStats,
		"identity_registerPersona":  s.handleIdentityRegisterPersona,
		"identity_submitPersona":    s.handleIdentitySubmitPersona,
		"identity_removePersona":    s.handleIdentityRemovePersona,
		"affiliate_getLink":         s.handleAffiliateGetLink,
		"affiliate_listLinks":       s.handleAffiliateListLinks,
		"affiliate_registerLink":    s.handleAffiliateRegisterLink,
		"affiliate_trackReferral":   s.handleAffiliateTrackReferral,
		"admin_credit":              s.handleAdminCredit,
		"admin_updateReputation":    s.handleAdminUpdateReputation,
		"admin_exportReceipts":      s.handleAdminExportReceipts,
		"admin_setPause":            s.handleAdminSetPause,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	handler, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	ctx, span := vitrineotel.StartSpan(r.Context(), "rpc."+req.Method, attribute.String("rpc.method", req.Method))
	defer span.End()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	handler(recorder, r.WithContext(ctx), req)
	duration := time.Since(start)

	module := moduleOf(req.Method)
	observability.ModuleMetrics().Observe(module, req.Method, recorder.status, duration)
	span.SetAttributes(attribute.Int("http.status_code", recorder.status))
	if recorder.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(recorder.status))
	}
	s.logger.Debug("rpc request served",
		slog.String("method", req.Method),
		slog.Int("status", recorder.status),
		slog.Duration("duration", duration),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())))
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
