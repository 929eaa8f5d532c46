package api

// Request and response shapes for the REST endpoints and WebSocket messages.

// ==============================
// REST Response Types
// ==============================

// PairInfo describes a trading pair.
type PairInfo struct {
	Engine  string `json:"engine"` // "token" or "native"
	ID      uint64 `json:"id"`
	Base    uint32 `json:"base"` // ignored on the native engine
	Target  uint32 `json:"target"`
	Banker  string `json:"banker"`
	Active  bool   `json:"active"`
	Created uint64 `json:"created"` // cycle height
}

// OrderInfo describes a resting order.
type OrderInfo struct {
	ID      uint64 `json:"id"`
	Pair    uint64 `json:"pair"`
	Side    string `json:"side"` // "buy" or "sell"
	Owner   string `json:"owner"`
	Volume  uint64 `json:"volume"` // remaining, fixed-point 10^12
	Ratio   uint64 `json:"ratio"`  // fixed-point 10^12
	Created uint64 `json:"created"`
}

// OrderbookSnapshot is both sides of a pair's book in submission order.
type OrderbookSnapshot struct {
	Engine string      `json:"engine"`
	Pair   uint64      `json:"pair"`
	Buys   []OrderInfo `json:"buys"`
	Sells  []OrderInfo `json:"sells"`
	Height uint64      `json:"height"`
}

// TradeInfo describes a settled trade.
type TradeInfo struct {
	ID      uint64 `json:"id"`
	Pair    uint64 `json:"pair"`
	Seller  string `json:"seller"`
	Buyer   string `json:"buyer"`
	Volume  uint64 `json:"volume"` // buyer leg
	Ratio   uint64 `json:"ratio"`
	Created uint64 `json:"created"`
}

// AssetInfo describes a ledger asset.
type AssetInfo struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Owner   string `json:"owner"`
	Supply  uint64 `json:"supply"`
	Created uint64 `json:"created"`
}

// BalanceInfo is one account's holding of one asset.
type BalanceInfo struct {
	Address string `json:"address"`
	Asset   uint32 `json:"asset"`
	Balance uint64 `json:"balance"`
}

// CoinBalanceInfo is one account's native coin holding.
type CoinBalanceInfo struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// NodeStatus summarizes the node.
type NodeStatus struct {
	Height      uint64 `json:"height"`
	QueueDepth  int    `json:"queueDepth"`
	TokenPairs  int    `json:"tokenPairs"`
	NativePairs int    `json:"nativePairs"`
}

// SubmitOrderResponse acknowledges an admitted order.
type SubmitOrderResponse struct {
	Status string `json:"status"`
	Order  *OrderInfo `json:"order,omitempty"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders.
type SubmitOrderRequest struct {
	Engine string `json:"engine"`
	Pair   uint64 `json:"pair"`
	Side   string `json:"side"` // "buy" or "sell"
	Owner  string `json:"owner"`
	Volume uint64 `json:"volume"`
	Ratio  uint64 `json:"ratio"`
}

// CancelOrderRequest is the payload for POST /api/v1/orders/cancel.
type CancelOrderRequest struct {
	Engine  string `json:"engine"`
	Pair    uint64 `json:"pair"`
	Side    string `json:"side"`
	OrderID uint64 `json:"orderId"`
	Caller  string `json:"caller"`
}

// CreateAssetRequest registers a new ledger asset.
type CreateAssetRequest struct {
	Creator       string `json:"creator"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	InitialSupply uint64 `json:"initialSupply"`
}

// EditAssetRequest renames an asset. Asset owner only.
type EditAssetRequest struct {
	Caller string `json:"caller"`
	Asset  uint32 `json:"asset"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// SupplyChangeRequest mints or burns supply. Asset owner only.
type SupplyChangeRequest struct {
	Caller string `json:"caller"`
	Asset  uint32 `json:"asset"`
	Amount uint64 `json:"amount"`
}

// TransferAssetRequest moves asset balance between accounts.
type TransferAssetRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  uint32 `json:"asset"`
	Amount uint64 `json:"amount"`
}

// TransferCoinRequest moves native coin between accounts.
type TransferCoinRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// DepositCoinRequest credits native coin. Admin only.
type DepositCoinRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// CreatePairRequest registers a trading pair. Admin only.
type CreatePairRequest struct {
	Caller string `json:"caller"`
	Engine string `json:"engine"`
	Banker string `json:"banker"`
	Base   uint32 `json:"base"` // ignored on the native engine
	Target uint32 `json:"target"`
}

// EditPairRequest repoints a pair's target asset. Admin only.
type EditPairRequest struct {
	Caller string `json:"caller"`
	Engine string `json:"engine"`
	Pair   uint64 `json:"pair"`
	Target uint32 `json:"target"`
}

// PairActiveRequest pauses or resumes a pair. Admin only.
type PairActiveRequest struct {
	Caller string `json:"caller"`
	Engine string `json:"engine"`
	Pair   uint64 `json:"pair"`
	Active bool   `json:"active"`
}

// ThresholdsRequest replaces an engine's admission thresholds. Admin only.
type ThresholdsRequest struct {
	Caller    string `json:"caller"`
	Engine    string `json:"engine"`
	MinVolume uint64 `json:"minVolume"`
	MinRatio  uint64 `json:"minRatio"`
}

// AccountsRequest replaces an engine's custodial accounts. Admin only.
type AccountsRequest struct {
	Caller    string `json:"caller"`
	Engine    string `json:"engine"`
	Operation string `json:"operation"`
	Vault     string `json:"vault"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
// Channels: "orders:{engine}:{pair}", "trades:{engine}:{pair}".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// OrderUpdate is broadcast when an order is admitted.
type OrderUpdate struct {
	Type   string    `json:"type"` // "order"
	Engine string    `json:"engine"`
	Order  OrderInfo `json:"order"`
}

// TradeUpdate is broadcast when a trade settles.
type TradeUpdate struct {
	Type   string    `json:"type"` // "trade"
	Engine string    `json:"engine"`
	Trade  TradeInfo `json:"trade"`
}
