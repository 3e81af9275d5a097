// wire.go holds the venue's on-the-wire JSON shapes. These are private to
// the adapter: every exported operation translates them into pkg/types
// domain records (decimal, not string/float64) at the boundary.
package clob

import "math/big"

// wirePriceLevel is a single bid/ask level as the venue encodes it — price
// and size are strings to preserve precision in transit.
type wirePriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wireBookResponse is the REST response from GET /book for a single token.
type wireBookResponse struct {
	Market    string           `json:"market"`
	AssetID   string           `json:"asset_id"`
	Bids      []wirePriceLevel `json:"bids"`
	Asks      []wirePriceLevel `json:"asks"`
	Timestamp string           `json:"timestamp"`
	TickSize  string           `json:"tick_size"`
	NegRisk   bool             `json:"neg_risk"`
}

// wireSignedOrder is the on-chain order structure sent to POST /orders.
type wireSignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`
	Signer        string        `json:"signer"`
	Taker         string        `json:"taker"`
	TokenID       string        `json:"tokenId"`
	MakerAmount   *big.Int      `json:"makerAmount"`
	TakerAmount   *big.Int      `json:"takerAmount"`
	Side          string        `json:"side"`
	Expiration    string        `json:"expiration"`
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	SignatureType int           `json:"signatureType"`
	Signature     string        `json:"signature"`
}

// wireOrderPayload is the REST request body for POST /orders.
type wireOrderPayload struct {
	Order     wireSignedOrder `json:"order"`
	Owner     string          `json:"owner"`
	OrderType string          `json:"orderType"`
}

// wireOrderResponse is the REST response for one order in a batch POST.
type wireOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// wireCancelResponse is returned by every cancel endpoint.
type wireCancelResponse struct {
	Canceled []string `json:"canceled"`
}

// wireMarket is one entry of the venue's market-discovery listing.
type wireMarket struct {
	ConditionID     string   `json:"condition_id"`
	Question        string   `json:"question"`
	Active          bool     `json:"active"`
	Closed          bool     `json:"closed"`
	AcceptingOrders bool     `json:"accepting_orders"`
	EndDateISO      string   `json:"end_date_iso"`
	Tags            []string `json:"tags"`
	TickSize        string   `json:"minimum_tick_size"`
	NegRisk         bool     `json:"neg_risk"`
	FeeRateBps      int      `json:"fee_rate_bps"`
	Tokens          []struct {
		TokenID string `json:"token_id"`
		Outcome string `json:"outcome"`
	} `json:"tokens"`
}

type wireMarketsPage struct {
	Data       []wireMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
}

// wireBookEvent is a full order-book snapshot pushed over the market WS channel.
type wireBookEvent struct {
	EventType string           `json:"event_type"`
	AssetID   string           `json:"asset_id"`
	Timestamp string           `json:"timestamp"`
	Buys      []wirePriceLevel `json:"buys"`
	Sells     []wirePriceLevel `json:"sells"`
}

// wireSubscribeMsg is the initial subscription frame for a book session.
type wireSubscribeMsg struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}
