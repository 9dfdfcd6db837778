package rpc

import "net/http"

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type withdrawResult struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleLedgerGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: amountString(s.market.Balance(addr))})
}

func (s *Server) handleLedgerWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	caller, ok := s.requireCaller(w, r, req)
	if !ok {
		return
	}
	amount, err := s.market.Withdraw(r.Context(), caller)
	if err != nil {
		writeDomainError(w, req, err)
		return
	}
	writeResult(w, req.ID, withdrawResult{Address: caller.String(), Amount: amountString(amount)})
}
