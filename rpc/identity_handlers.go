package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"vitrine/observability/logging"
	"vitrine/services/persona"

	coreid "vitrine/core/identity"
)

type addressParams struct {
	Address string `json:"address"`
}

type reputationResult struct {
	Address    string `json:"address"`
	Reputation uint64 `json:"reputation"`
}

type personaHashResult struct {
	Address string `json:"address"`
	Bound   bool   `json:"bound"`
	Hash    string `json:"hash,omitempty"`
}

type registerPersonaParams struct {
	Hash string `json:"hash"`
}

type submitPersonaParams struct {
	Persona json.RawMessage `json:"persona"`
}

type submitPersonaResult struct {
	Hash      string `json:"hash"`
	ContentID string `json:"contentId"`
}

func (s *Server) handleIdentityGetReputation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	writeResult(w, req.ID, reputationResult{Address: addr.String(), Reputation: s.market.Reputation(addr)})
}

func (s *Server) handleIdentityGetPersonaHash(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	result := personaHashResult{Address: addr.String()}
	if hash, ok := s.market.PersonaHash(addr); ok {
		result.Bound = true
		result.Hash = hash.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleIdentityGetStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.market.Identity().Stats())
}

func (s *Server) handleIdentityRegisterPersona(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params registerPersonaParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	hash, err := coreid.ParseHash(params.Hash)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.market.RegisterPersona(r.Context(), caller, hash); err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

// handleIdentitySubmitPersona runs the raw submission through the persona
// processor and binds the resulting hash to the caller.
func (s *Server) handleIdentitySubmitPersona(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "persona processor unavailable", nil)
		return
	}
	var params submitPersonaParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	if len(params.Persona) == 0 {
		invalidParams(w, req, errors.New("persona required"))
		return
	}
	hash, contentID, err := s.processor.Process(r.Context(), params.Persona)
	if errors.Is(err, persona.ErrInvalidSubmission) {
		invalidParams(w, req, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, req.ID, codeServerError, "persona processing failed", err.Error())
		return
	}
	if err := s.market.RegisterPersona(r.Context(), caller, hash); err != nil {
		s.logger.Info("persona binding rejected",
			"address", caller.String(),
			"persona", logging.MaskValue(hash.String()),
			"error", err)
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, submitPersonaResult{Hash: hash.String(), ContentID: string(contentID)})
}

func (s *Server) handleIdentityRemovePersona(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	if err := s.market.RemovePersona(r.Context(), caller); err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}
