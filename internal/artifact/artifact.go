// Package artifact encodes price histories into the persisted JSON artifact.
//
// The artifact shape is fixed: {"items":[{"unixTime":n,"value":n},...]}
// with items ascending by unixTime. Readers rely on both shape and order.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"

	"memecoin-calls/internal/domain"
)

// ContentType is the media type of encoded artifacts.
const ContentType = "application/json"

// ErrUnsorted is returned when an artifact's items are not ascending by unixTime.
var ErrUnsorted = errors.New("price history items are not ascending by unixTime")

// document is the on-disk JSON shape.
type document struct {
	Items []domain.PriceSample `json:"items"`
}

// Key returns the storage key of the price-history artifact for a call.
func Key(callID string) string {
	return "price-history/" + callID + ".json"
}

// Encode serializes a price history. Samples must already be ascending.
func Encode(history domain.PriceHistory) ([]byte, error) {
	if !history.IsSorted() {
		return nil, ErrUnsorted
	}
	items := []domain.PriceSample(history)
	if items == nil {
		items = []domain.PriceSample{}
	}
	data, err := json.Marshal(document{Items: items})
	if err != nil {
		return nil, fmt.Errorf("marshal price history: %w", err)
	}
	return data, nil
}

// Decode parses an artifact and checks ordering.
func Decode(data []byte) (domain.PriceHistory, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal price history: %w", err)
	}
	history := domain.PriceHistory(doc.Items)
	if !history.IsSorted() {
		return nil, ErrUnsorted
	}
	return history, nil
}
