// Package api serves the node's REST and WebSocket surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/app"
	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/ledger"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	log    *zap.SugaredLogger
	app    *app.App
	router *mux.Router
	hub    *Hub
}

func NewServer(log *zap.SugaredLogger, a *app.App) *Server {
	s := &Server{
		log:    log,
		app:    a,
		router: mux.NewRouter(),
		hub:    NewHub(log),
	}
	s.setupRoutes()
	return s
}

// Notifier returns the event sink that feeds WebSocket subscribers. Wire it
// into the engines' notifier fan-out.
func (s *Server) Notifier() exchange.Notifier {
	return &broadcaster{hub: s.hub}
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Node
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Ledger
	api.HandleFunc("/assets", s.handleCreateAsset).Methods("POST")
	api.HandleFunc("/assets/edit", s.handleEditAsset).Methods("POST")
	api.HandleFunc("/assets/mint", s.handleMint).Methods("POST")
	api.HandleFunc("/assets/burn", s.handleBurn).Methods("POST")
	api.HandleFunc("/assets/transfer", s.handleTransferAsset).Methods("POST")
	api.HandleFunc("/assets/{id}", s.handleGetAsset).Methods("GET")
	api.HandleFunc("/assets/{id}/balances/{address}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/coin/transfer", s.handleTransferCoin).Methods("POST")
	api.HandleFunc("/coin/deposit", s.handleDepositCoin).Methods("POST")
	api.HandleFunc("/coin/{address}", s.handleGetCoinBalance).Methods("GET")

	// Exchange, per engine
	api.HandleFunc("/{engine}/pairs", s.handleGetPairs).Methods("GET")
	api.HandleFunc("/{engine}/pairs/{id}", s.handleGetPair).Methods("GET")
	api.HandleFunc("/{engine}/pairs/{id}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/{engine}/pairs/{id}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/{engine}/pairs/{id}/orders/{address}", s.handleGetOwnerOrders).Methods("GET")

	// Order flow
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Admin
	api.HandleFunc("/admin/pairs", s.handleCreatePair).Methods("POST")
	api.HandleFunc("/admin/pairs/target", s.handleEditPair).Methods("POST")
	api.HandleFunc("/admin/pairs/active", s.handlePairActive).Methods("POST")
	api.HandleFunc("/admin/thresholds", s.handleThresholds).Methods("POST")
	api.HandleFunc("/admin/accounts", s.handleAccounts).Methods("POST")

	// WebSocket, health, metrics
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Start runs the WebSocket hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	token, _ := s.app.Engine(app.EngineToken)
	native, _ := s.app.Engine(app.EngineNative)
	respondJSON(w, NodeStatus{
		Height:      s.app.Height(),
		QueueDepth:  s.app.QueueLen(),
		TokenPairs:  len(token.Pairs()),
		NativePairs: len(native.Pairs()),
	})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseAssetID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	a := s.app.Ledger().Asset(id)
	if a == nil {
		respondError(w, http.StatusNotFound, "asset not found", "")
		return
	}
	respondJSON(w, AssetInfo{
		ID:      uint32(a.ID),
		Name:    a.Name,
		Symbol:  a.Symbol,
		Owner:   a.Owner.Hex(),
		Supply:  s.app.Ledger().Supply(a.ID),
		Created: a.Created,
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, ok := parseAssetID(w, vars["id"])
	if !ok {
		return
	}
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	respondJSON(w, BalanceInfo{
		Address: addr.Hex(),
		Asset:   uint32(id),
		Balance: s.app.Ledger().Balance(id, addr),
	})
}

func (s *Server) handleGetCoinBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	respondJSON(w, CoinBalanceInfo{
		Address: addr.Hex(),
		Balance: s.app.Bank().Balance(addr),
	})
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	creator, ok := parseAddress(w, req.Creator)
	if !ok {
		return
	}
	a, err := s.app.CreateAsset(creator, req.Name, req.Symbol, req.InitialSupply)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, AssetInfo{
		ID:      uint32(a.ID),
		Name:    a.Name,
		Symbol:  a.Symbol,
		Owner:   a.Owner.Hex(),
		Supply:  req.InitialSupply,
		Created: a.Created,
	})
}

func (s *Server) handleEditAsset(w http.ResponseWriter, r *http.Request) {
	var req EditAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	s.respondOp(w, s.app.EditAsset(caller, ledger.AssetID(req.Asset), req.Name, req.Symbol))
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req SupplyChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	s.respondOp(w, s.app.MintAsset(caller, ledger.AssetID(req.Asset), req.Amount))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req SupplyChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	s.respondOp(w, s.app.BurnAsset(caller, ledger.AssetID(req.Asset), req.Amount))
}

func (s *Server) handleTransferAsset(w http.ResponseWriter, r *http.Request) {
	var req TransferAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, ok := parseAddress(w, req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To)
	if !ok {
		return
	}
	s.respondOp(w, s.app.TransferAsset(from, to, ledger.AssetID(req.Asset), req.Amount))
}

func (s *Server) handleTransferCoin(w http.ResponseWriter, r *http.Request) {
	var req TransferCoinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	from, ok := parseAddress(w, req.From)
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To)
	if !ok {
		return
	}
	s.respondOp(w, s.app.TransferCoin(from, to, req.Amount))
}

func (s *Server) handleDepositCoin(w http.ResponseWriter, r *http.Request) {
	var req DepositCoinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To)
	if !ok {
		return
	}
	s.respondOp(w, s.app.DepositCoin(caller, to, req.Amount))
}

func (s *Server) engineFromPath(w http.ResponseWriter, r *http.Request) (*exchange.Engine, bool) {
	name := mux.Vars(r)["engine"]
	eng, err := s.app.Engine(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown engine", name)
		return nil, false
	}
	return eng, true
}

func (s *Server) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFromPath(w, r)
	if !ok {
		return
	}
	pairs := eng.Pairs()
	out := make([]PairInfo, len(pairs))
	for i, p := range pairs {
		out[i] = pairInfo(eng.Name(), p)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFromPath(w, r)
	if !ok {
		return
	}
	id, ok := parsePairID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	p := eng.Pair(id)
	if p == nil {
		respondError(w, http.StatusNotFound, "pair not found", "")
		return
	}
	respondJSON(w, pairInfo(eng.Name(), p))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFromPath(w, r)
	if !ok {
		return
	}
	id, ok := parsePairID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	book := eng.Book(id)
	if book == nil {
		respondError(w, http.StatusNotFound, "pair not found", "")
		return
	}
	respondJSON(w, OrderbookSnapshot{
		Engine: eng.Name(),
		Pair:   uint64(id),
		Buys:   orderInfos(book.Orders(exchange.Buy)),
		Sells:  orderInfos(book.Orders(exchange.Sell)),
		Height: s.app.Height(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFromPath(w, r)
	if !ok {
		return
	}
	id, ok := parsePairID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	book := eng.Book(id)
	if book == nil {
		respondError(w, http.StatusNotFound, "pair not found", "")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades := book.RecentTrades(limit)
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = tradeInfo(t)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOwnerOrders(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engineFromPath(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	id, ok := parsePairID(w, vars["id"])
	if !ok {
		return
	}
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}
	book := eng.Book(id)
	if book == nil {
		respondError(w, http.StatusNotFound, "pair not found", "")
		return
	}
	orders := append(book.OwnerOrders(exchange.Buy, addr), book.OwnerOrders(exchange.Sell, addr)...)
	respondJSON(w, orderInfos(orders))
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}
	side, ok := parseSide(w, req.Side)
	if !ok {
		return
	}
	o, err := s.app.SubmitOrder(req.Engine, owner, exchange.PairID(req.Pair), side, req.Volume, req.Ratio)
	if err != nil {
		respondAppError(w, err)
		return
	}
	info := orderInfo(*o)
	respondJSON(w, SubmitOrderResponse{Status: "accepted", Order: &info})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	side, ok := parseSide(w, req.Side)
	if !ok {
		return
	}
	err := s.app.CancelOrder(req.Engine, caller, exchange.PairID(req.Pair), side, exchange.OrderID(req.OrderID))
	s.respondOp(w, err)
}

func (s *Server) handleCreatePair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	banker, ok := parseAddress(w, req.Banker)
	if !ok {
		return
	}
	p, err := s.app.CreatePair(caller, req.Engine, banker, ledger.AssetID(req.Base), ledger.AssetID(req.Target))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, pairInfo(req.Engine, p))
}

func (s *Server) handleEditPair(w http.ResponseWriter, r *http.Request) {
	var req EditPairRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	s.respondOp(w, s.app.EditPairTarget(caller, req.Engine, exchange.PairID(req.Pair), ledger.AssetID(req.Target)))
}

func (s *Server) handlePairActive(w http.ResponseWriter, r *http.Request) {
	var req PairActiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	s.respondOp(w, s.app.SetPairActive(caller, req.Engine, exchange.PairID(req.Pair), req.Active))
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	var req ThresholdsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	t := exchange.Thresholds{MinVolume: req.MinVolume, MinRatio: req.MinRatio}
	s.respondOp(w, s.app.SetThresholds(caller, req.Engine, t))
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	var req AccountsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	operation, ok := parseAddress(w, req.Operation)
	if !ok {
		return
	}
	vault, ok := parseAddress(w, req.Vault)
	if !ok {
		return
	}
	acct := exchange.Accounts{Operation: operation, Vault: vault}
	s.respondOp(w, s.app.SetAccounts(caller, req.Engine, acct))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func pairInfo(engine string, p *exchange.Pair) PairInfo {
	return PairInfo{
		Engine:  engine,
		ID:      uint64(p.ID),
		Base:    uint32(p.Base),
		Target:  uint32(p.Target),
		Banker:  p.Banker.Hex(),
		Active:  p.Active,
		Created: p.Created,
	}
}

func orderInfo(o exchange.Order) OrderInfo {
	return OrderInfo{
		ID:      uint64(o.ID),
		Pair:    uint64(o.Pair),
		Side:    o.Side.String(),
		Owner:   o.Owner.Hex(),
		Volume:  o.Volume,
		Ratio:   o.Ratio,
		Created: o.Created,
	}
}

func orderInfos(orders []exchange.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	return out
}

func tradeInfo(t *exchange.Trade) TradeInfo {
	return TradeInfo{
		ID:      uint64(t.ID),
		Pair:    uint64(t.Pair),
		Seller:  t.Seller.Hex(),
		Buyer:   t.Buyer.Hex(),
		Volume:  t.Volume,
		Ratio:   t.Ratio,
		Created: t.Created,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseSide(w http.ResponseWriter, s string) (exchange.Side, bool) {
	switch s {
	case "buy":
		return exchange.Buy, true
	case "sell":
		return exchange.Sell, true
	default:
		respondError(w, http.StatusBadRequest, "invalid side", s)
		return 0, false
	}
}

func parsePairID(w http.ResponseWriter, s string) (exchange.PairID, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pair id", s)
		return 0, false
	}
	return exchange.PairID(n), true
}

func parseAssetID(w http.ResponseWriter, s string) (ledger.AssetID, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset id", s)
		return 0, false
	}
	return ledger.AssetID(n), true
}

func (s *Server) respondOp(w http.ResponseWriter, err error) {
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

// respondAppError maps domain errors onto HTTP status codes.
func respondAppError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, exchange.ErrPairNotFound),
		errors.Is(err, ledger.ErrAssetNotFound),
		errors.Is(err, app.ErrUnknownEngine):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrNotOrderCreator),
		errors.Is(err, ledger.ErrNotAssetOwner),
		errors.Is(err, app.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, err.Error(), "")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
