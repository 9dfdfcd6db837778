package rpc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vitrine/integrations/exports"
	"vitrine/native/common"
)

type creditParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type reputationParams struct {
	Address string `json:"address"`
	Delta   int64  `json:"delta"`
}

type exportParams struct {
	Format string `json:"format"`
	From   uint64 `json:"from"`
	Limit  int    `json:"limit"`
}

type exportResult struct {
	Format     string `json:"format"`
	Count      int    `json:"count"`
	Checksum   string `json:"checksum"`
	DataBase64 string `json:"dataBase64"`
}

type pauseParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

var pausableModules = map[string]bool{
	common.ModuleIdentity:  true,
	common.ModuleCatalog:   true,
	common.ModuleMarket:    true,
	common.ModuleAffiliate: true,
	common.ModuleLedger:    true,
}

func (s *Server) handleAdminCredit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	admin, ok := s.requireAdmin(w, r, req)
	if !ok {
		return
	}
	var params creditParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.market.AdminCredit(r.Context(), addr, amount); err != nil {
		writeDomainError(w, req, err)
		return
	}
	s.logger.Info("admin credit applied",
		"admin", admin.String(),
		"address", addr.String(),
		"amount", amount.String())
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: amountString(s.market.Balance(addr))})
}

func (s *Server) handleAdminUpdateReputation(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if _, ok := s.requireAdmin(w, r, req); !ok {
		return
	}
	var params reputationParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	score, err := s.market.UpdateReputation(r.Context(), addr, params.Delta)
	if err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, reputationResult{Address: addr.String(), Reputation: score})
}

func (s *Server) handleAdminExportReceipts(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if _, ok := s.requireAdmin(w, r, req); !ok {
		return
	}
	params := exportParams{Format: "csv"}
	if err := decodeOptionalParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	receipts := s.market.Receipts(params.From, params.Limit)
	var (
		data     []byte
		checksum string
		err      error
	)
	format := strings.ToLower(strings.TrimSpace(params.Format))
	switch format {
	case "csv":
		data, checksum, err = exports.ReceiptsCSV(receipts)
	case "jsonl":
		data, checksum, err = exports.ReceiptsJSONL(receipts)
	default:
		invalidParams(w, req, fmt.Errorf("unsupported format %q", params.Format))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to export receipts", err.Error())
		return
	}
	writeResult(w, req.ID, exportResult{
		Format:     format,
		Count:      len(receipts),
		Checksum:   checksum,
		DataBase64: base64.StdEncoding.EncodeToString(data),
	})
}

func (s *Server) handleAdminSetPause(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	admin, ok := s.requireAdmin(w, r, req)
	if !ok {
		return
	}
	if s.pauses == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "pause control unavailable", nil)
		return
	}
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	module := strings.ToLower(strings.TrimSpace(params.Module))
	if !pausableModules[module] {
		invalidParams(w, req, errors.New("unknown module"))
		return
	}
	s.pauses.Set(module, params.Paused)
	s.logger.Warn("module pause toggled",
		"admin", admin.String(),
		"module", module,
		"paused", params.Paused)
	writeResult(w, req.ID, pauseParams{Module: module, Paused: params.Paused})
}
