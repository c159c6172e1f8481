package domain

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// SolanaAddressLen is the decoded length of a Solana mint address.
const SolanaAddressLen = 32

// ErrInvalidTokenID is returned when a token id is not a Solana mint address.
var ErrInvalidTokenID = errors.New("invalid token id")

// ValidateTokenID checks that tokenID is a base58 encoded 32-byte address.
func ValidateTokenID(tokenID string) error {
	if tokenID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTokenID)
	}
	decoded, err := base58.Decode(tokenID)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTokenID, tokenID, err)
	}
	if len(decoded) != SolanaAddressLen {
		return fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidTokenID, tokenID, len(decoded))
	}
	return nil
}

// TokenMetadata is the provider's overview of a token.
type TokenMetadata struct {
	TokenID   string   `json:"tokenId"`   // mint address
	Name      *string  `json:"name"`      // token name (nullable)
	Symbol    *string  `json:"symbol"`    // token symbol (nullable)
	Decimals  int      `json:"decimals"`  // token decimals
	Price     float64  `json:"price"`     // current price in USD
	Supply    *float64 `json:"supply"`    // circulating supply (nullable)
	MarketCap *float64 `json:"marketCap"` // price * supply as reported upstream (nullable)
}
