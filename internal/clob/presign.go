package clob

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// Sign builds a signed order blob for req using params, with an explicit
// on-venue expiration. expirationSecs of 0 disables expiry. Signing is
// CPU-bound (EIP-712 over secp256k1) and is expected to be invoked off the
// engine's hot path — during scanner idle time via the pre-signed pool, or
// synchronously when no current pool entry exists.
func Sign(auth *Auth, req types.OrderRequest, params types.MarketParams, expirationSecs int64) (*types.PreSignedOrder, error) {
	makerAmt, takerAmt := PriceToAmounts(req.Price, req.Size, req.Side, params.TickSize)

	var expirationTS int64
	if expirationSecs > 0 {
		expirationTS = time.Now().Unix() + expirationSecs
	}

	order := wireSignedOrder{
		Maker:         auth.FunderAddress().Hex(),
		Signer:        auth.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       req.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Side:          string(req.Side),
		Expiration:    fmt.Sprintf("%d", expirationTS),
		Nonce:         "0",
		FeeRateBps:    fmt.Sprintf("%d", params.FeeRateBps),
		SignatureType: int(auth.sigType),
	}

	payload := wireOrderPayload{
		Order:     order,
		Owner:     auth.creds.ApiKey,
		OrderType: string(types.OrderTypeGTC),
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal signed order: %w", err)
	}

	return &types.PreSignedOrder{
		Key:          poolKey(req.TokenID, req.Side, req.Price),
		TokenID:      req.TokenID,
		Side:         req.Side,
		Price:        req.Price,
		Size:         req.Size,
		OrderType:    types.OrderTypeGTC,
		Params:       params,
		Blob:         string(blob),
		CreatedAt:    time.Now(),
		ExpirationTS: expirationTS,
	}, nil
}

func poolKey(tokenID string, side types.Side, price decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s", tokenID, side, price.String())
}
