package clob

import (
	"testing"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func testAuth(t *testing.T) *Auth {
	t.Helper()
	cfg := config.Config{
		Wallet: config.WalletConfig{
			PrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
			ChainID:    137,
		},
	}
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestPriceToAmountsBuy(t *testing.T) {
	t.Parallel()
	price := decimal.RequireFromString("0.50")
	size := decimal.RequireFromString("200")

	makerAmt, takerAmt := PriceToAmounts(price, size, types.BUY, types.Tick001)

	if makerAmt.Cmp(decimal.RequireFromString("100").Mul(decimal.New(1, 6)).BigInt()) != 0 {
		t.Errorf("expected makerAmount 100e6 (USDC cost), got %v", makerAmt)
	}
	if takerAmt.Cmp(decimal.RequireFromString("200").Mul(decimal.New(1, 6)).BigInt()) != 0 {
		t.Errorf("expected takerAmount 200e6 (tokens received), got %v", takerAmt)
	}
}

func TestPriceToAmountsSell(t *testing.T) {
	t.Parallel()
	price := decimal.RequireFromString("0.30")
	size := decimal.RequireFromString("100")

	makerAmt, takerAmt := PriceToAmounts(price, size, types.SELL, types.Tick001)

	if makerAmt.Cmp(decimal.RequireFromString("100").Mul(decimal.New(1, 6)).BigInt()) != 0 {
		t.Errorf("expected makerAmount 100e6 (tokens given), got %v", makerAmt)
	}
	if takerAmt.Cmp(decimal.RequireFromString("30").Mul(decimal.New(1, 6)).BigInt()) != 0 {
		t.Errorf("expected takerAmount 30e6 (USDC received), got %v", takerAmt)
	}
}

func TestL2HeadersRoundTrip(t *testing.T) {
	t.Parallel()
	auth := testAuth(t)
	auth.SetCredentials(Credentials{
		ApiKey:     "key",
		Secret:     "c2VjcmV0LXZhbHVl", // base64 "secret-value"
		Passphrase: "pass",
	})

	headers, err := auth.L2Headers("POST", "/orders", `{"a":1}`)
	if err != nil {
		t.Fatalf("L2Headers: %v", err)
	}
	for _, want := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_API_KEY", "POLY_PASSPHRASE"} {
		if headers[want] == "" {
			t.Errorf("missing header %s", want)
		}
	}
}

func TestL1HeadersIncludesNonce(t *testing.T) {
	t.Parallel()
	auth := testAuth(t)
	headers, err := auth.L1Headers(7)
	if err != nil {
		t.Fatalf("L1Headers: %v", err)
	}
	if headers["POLY_NONCE"] != "7" {
		t.Errorf("expected nonce 7, got %s", headers["POLY_NONCE"])
	}
	if headers["POLY_SIGNATURE"] == "" {
		t.Errorf("expected a signature")
	}
}
