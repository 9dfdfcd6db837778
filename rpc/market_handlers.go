package rpc

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"vitrine/core/types"
	"vitrine/native/catalog"
	"vitrine/native/market"
	"vitrine/services/contentstore"
)

type productResult struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	Price         string `json:"price"`
	CommissionBps uint16 `json:"commissionBps"`
	MetadataRef   string `json:"metadataRef,omitempty"`
	Active        bool   `json:"active"`
	Sales         uint64 `json:"sales"`
	ListedAt      uint64 `json:"listedAt"`
}

type receiptResult struct {
	Sequence       uint64 `json:"sequence"`
	ProductID      uint64 `json:"productId"`
	Buyer          string `json:"buyer"`
	Seller         string `json:"seller"`
	Promoter       string `json:"promoter,omitempty"`
	PricePaid      string `json:"pricePaid"`
	PlatformFee    string `json:"platformFee"`
	SellerAmount   string `json:"sellerAmount"`
	PromoterAmount string `json:"promoterAmount"`
	Change         string `json:"change"`
	Timestamp      int64  `json:"timestamp"`
}

type marketStatsResult struct {
	TotalProducts  uint64 `json:"totalProducts"`
	TotalSales     uint64 `json:"totalSales"`
	TotalVolume    string `json:"totalVolume"`
	PlatformFees   string `json:"platformFees"`
	Commissions    string `json:"commissions"`
	SellerProceeds string `json:"sellerProceeds"`
}

type productIDParams struct {
	ID uint64 `json:"id"`
}

type sellerParams struct {
	Seller string `json:"seller"`
}

type receiptsParams struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

type receiptParams struct {
	Sequence uint64 `json:"sequence"`
}

type listProductParams struct {
	Price         string `json:"price"`
	CommissionBps uint16 `json:"commissionBps"`
	MetadataRef   string `json:"metadataRef,omitempty"`
	Metadata      string `json:"metadata,omitempty"`
}

type listProductResult struct {
	ID          uint64 `json:"id"`
	MetadataRef string `json:"metadataRef,omitempty"`
}

type updateProductParams struct {
	ID     uint64 `json:"id"`
	Price  string `json:"price"`
	Active bool   `json:"active"`
}

type metadataResult struct {
	MetadataRef string `json:"metadataRef"`
	Metadata    string `json:"metadata"`
}

type purchaseParams struct {
	ProductID uint64 `json:"productId"`
	Payment   string `json:"payment"`
	Referral  string `json:"referral,omitempty"`
}

type okResult struct {
	OK bool `json:"ok"`
}

// maxListLimit caps the receipts returned by a single market_getReceipts call.
const maxListLimit = 500

func formatProduct(p *catalog.Product) productResult {
	return productResult{
		ID:            p.ID,
		Seller:        p.Seller.String(),
		Price:         amountString(p.Price),
		CommissionBps: p.CommissionBps,
		MetadataRef:   string(p.MetadataRef),
		Active:        p.Active,
		Sales:         p.Sales,
		ListedAt:      p.ListedAt,
	}
}

func formatProducts(products []*catalog.Product) []productResult {
	out := make([]productResult, 0, len(products))
	for _, p := range products {
		out = append(out, formatProduct(p))
	}
	return out
}

func formatReceipt(r *market.Receipt) receiptResult {
	result := receiptResult{
		Sequence:       r.Sequence,
		ProductID:      r.ProductID,
		Buyer:          r.Buyer.String(),
		Seller:         r.Seller.String(),
		PricePaid:      amountString(r.PricePaid),
		PlatformFee:    amountString(r.PlatformFee),
		SellerAmount:   amountString(r.SellerAmount),
		PromoterAmount: amountString(r.PromoterAmount),
		Change:         amountString(r.Change),
		Timestamp:      r.Timestamp,
	}
	if r.Promoter != nil {
		result.Promoter = r.Promoter.String()
	}
	return result
}

func (s *Server) handleMarketGetProduct(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params productIDParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	product, ok := s.market.Product(params.ID)
	if !ok {
		writeDomainError(w, req, catalog.ErrNotFound)
		return
	}
	writeResult(w, req.ID, formatProduct(product))
}

func (s *Server) handleMarketListActiveProducts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, formatProducts(s.market.ActiveProducts()))
}

func (s *Server) handleMarketListSellerProducts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sellerParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	seller, err := parseAddress("seller", params.Seller)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	writeResult(w, req.ID, formatProducts(s.market.ProductsBySeller(seller)))
}

func (s *Server) handleMarketGetStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats := s.market.Stats()
	totals := s.market.FeeTotals()
	writeResult(w, req.ID, marketStatsResult{
		TotalProducts:  stats.TotalProducts,
		TotalSales:     stats.TotalSales,
		TotalVolume:    amountString(stats.TotalVolume),
		PlatformFees:   amountString(totals.Platform),
		Commissions:    amountString(totals.Commission),
		SellerProceeds: amountString(totals.Seller),
	})
}

func (s *Server) handleMarketGetReceipt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params receiptParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	receipt, err := s.market.Receipt(params.Sequence)
	if err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatReceipt(receipt))
}

func (s *Server) handleMarketGetReceipts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := receiptsParams{Limit: 100}
	if err := decodeOptionalParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	if params.Limit <= 0 || params.Limit > maxListLimit {
		params.Limit = maxListLimit
	}
	receipts := s.market.Receipts(params.From, params.Limit)
	out := make([]receiptResult, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, formatReceipt(r))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleMarketListProduct(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params listProductParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	ref := types.NormalizeContentID(params.MetadataRef)
	if params.Metadata != "" {
		if ref != "" {
			invalidParams(w, req, errors.New("metadata and metadataRef are mutually exclusive"))
			return
		}
		if s.content == nil {
			writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "content store unavailable", nil)
			return
		}
		ref, err = s.content.Store(r.Context(), []byte(params.Metadata))
		if err != nil {
			writeError(w, http.StatusBadGateway, req.ID, codeServerError, "failed to store metadata", err.Error())
			return
		}
	}
	id, err := s.market.ListProduct(r.Context(), caller, price, params.CommissionBps, ref)
	if err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, listProductResult{ID: id, MetadataRef: string(ref)})
}

func (s *Server) handleMarketUpdateProduct(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params updateProductParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	if err := s.market.UpdateProduct(r.Context(), caller, params.ID, price, params.Active); err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleMarketGetMetadata(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params productIDParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	product, ok := s.market.Product(params.ID)
	if !ok {
		writeDomainError(w, req, catalog.ErrNotFound)
		return
	}
	if product.MetadataRef == "" {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "product has no metadata", nil)
		return
	}
	if s.content == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeUnavailable, "content store unavailable", nil)
		return
	}
	data, err := s.content.Fetch(r.Context(), product.MetadataRef)
	if errors.Is(err, contentstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "metadata not found", string(product.MetadataRef))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, req.ID, codeServerError, "failed to fetch metadata", err.Error())
		return
	}
	writeResult(w, req.ID, metadataResult{MetadataRef: string(product.MetadataRef), Metadata: string(data)})
}

func (s *Server) handleMarketPurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	var params purchaseParams
	if err := decodeParams(req, &params); err != nil {
		invalidParams(w, req, err)
		return
	}
	payment, err := parseAmount("payment", params.Payment)
	if err != nil {
		invalidParams(w, req, err)
		return
	}
	purchase := market.PurchaseRequest{Buyer: caller, ProductID: params.ProductID, Payment: payment}
	if strings.TrimSpace(params.Referral) != "" {
		referral, err := parseAddress("referral", params.Referral)
		if err != nil {
			invalidParams(w, req, err)
			return
		}
		purchase.Referral = &referral
	}
	receipt, err := s.market.Purchase(r.Context(), purchase)
	if err != nil {
		s.logger.Info("purchase rejected",
			slog.String("buyer", caller.String()),
			slog.Uint64("productid", params.ProductID),
			slog.Any("error", err))
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatReceipt(receipt))
}
