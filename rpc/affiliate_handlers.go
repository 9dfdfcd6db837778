package rpc

import (
	"net/http"

	"vitrine/native/affiliate"
)

type linkResult struct {
	ProductID      uint64 `json:"productId"`
	Promoter       string `json:"promoter"`
	CommissionBps  uint16 `json:"commissionBps"`
	CreditedSales  uint64 `json:"creditedSales"`
	CreditedAmount string `json:"creditedAmount"`
	CreatedAt      uint64 `json:"createdAt"`
}

type linkParams struct {
	ProductID uint64 `json:"productId"`
	Promoter  string `json:"promoter"`
}

type promoterParams struct {
	Promoter string `json:"promoter"`
}

func formatLink(link *affiliate.Link) linkResult {
	return linkResult{
		ProductID:      link.ProductID,
		Promoter:       link.Promoter.String(),
		CommissionBps:  link.CommissionBps,
		CreditedSales:  link.CreditedSales,
		CreditedAmount: amountString(link.CreditedAmount),
		CreatedAt:      link.CreatedAt,
	}
}

func (s *Server) handleAffiliateGetLink(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params linkParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	promoter, err := parseAddress("promoter", params.Promoter)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	link, ok := s.market.AffiliateLink(params.ProductID, promoter)
	if !ok {
		writeDomainError(w, req, affiliate.ErrLinkNotFound)
		return
	}
	writeResult(w, req.ID, formatLink(link))
}

func (s *Server) handleAffiliateListLinks(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params promoterParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	promoter, err := parseAddress("promoter", params.Promoter)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	links := s.market.AffiliateLinks(promoter)
	out := make([]linkResult, 0, len(links))
	for _, link := range links {
		out = append(out, formatLink(link))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAffiliateRegisterLink(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params productIDParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	link, err := s.market.RegisterLink(r.Context(), caller, params.ID)
	if err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatLink(link))
}

// handleAffiliateTrackReferral records that the caller arrived at a product
// through the promoter's link.
func (s *Server) handleAffiliateTrackReferral(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params linkParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	promoter, err := parseAddress("promoter", params.Promoter)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.market.TrackReferral(r.Context(), caller, params.ProductID, promoter); err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}
