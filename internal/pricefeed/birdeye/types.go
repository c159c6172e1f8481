package birdeye

import "memecoin-calls/internal/domain"

// envelope is the common Birdeye response wrapper.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type historyData struct {
	Items []domain.PriceSample `json:"items"`
}

type ohlcvItem struct {
	UnixTime int64   `json:"unixTime"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

type ohlcvData struct {
	Items []ohlcvItem `json:"items"`
}

type tokenOverview struct {
	Address           string   `json:"address"`
	Name              *string  `json:"name"`
	Symbol            *string  `json:"symbol"`
	Decimals          int      `json:"decimals"`
	Price             float64  `json:"price"`
	Supply            *float64 `json:"supply"`
	CirculatingSupply *float64 `json:"circulatingSupply"`
	MarketCap         *float64 `json:"marketCap"`
}
