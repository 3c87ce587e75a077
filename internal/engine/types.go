package engine

// Wire-структуры REST API движка

// tokenResponse - ответ POST /api/v1/token/login
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// tradeStatus - элемент ответа GET /api/v1/status (одна открытая позиция)
type tradeStatus struct {
	TradeID      int64   `json:"trade_id"`
	Pair         string  `json:"pair"`
	OpenRate     float64 `json:"open_rate"`
	Amount       float64 `json:"amount"`
	OpenDate     string  `json:"open_date"`
	CurrentRate  float64 `json:"current_rate"`
	ProfitRatio  float64 `json:"profit_ratio"`
	ProfitPct    float64 `json:"profit_pct"`
	IsOpen       bool    `json:"is_open"`
	StakeAmount  float64 `json:"stake_amount"`
	StakeCurrent float64 `json:"current_profit_abs"`
}

// balanceResponse - ответ GET /api/v1/balance
type balanceResponse struct {
	Currencies []balanceCurrency `json:"currencies"`
	Total      float64           `json:"total"`
	Symbol     string            `json:"symbol"`
	Stake      string            `json:"stake"`
}

type balanceCurrency struct {
	Currency string  `json:"currency"`
	Free     float64 `json:"free"`
	Balance  float64 `json:"balance"`
	Used     float64 `json:"used"`
}

// profitResponse - ответ GET /api/v1/profit
type profitResponse struct {
	ProfitClosedCoin    float64 `json:"profit_closed_coin"`
	ProfitClosedPercent float64 `json:"profit_closed_percent"`
	ProfitAllCoin       float64 `json:"profit_all_coin"`
	ProfitAllPercent    float64 `json:"profit_all_percent"`
	TradeCount          int     `json:"trade_count"`
	ClosedTradeCount    int     `json:"closed_trade_count"`
}

// tickerResponse - ответ GET /api/v1/ticker?pair=...
type tickerResponse struct {
	Pair string  `json:"pair"`
	Last float64 `json:"last"`
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
}

// forceExitRequest - тело POST /api/v1/forceexit
type forceExitRequest struct {
	TradeID   string  `json:"tradeid"`
	OrderType string  `json:"ordertype,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

type forceExitResponse struct {
	Result string `json:"result"`
}

// ProfitSummary - сводка прибыли инстанса для risk-оценки
type ProfitSummary struct {
	ClosedCoin    float64 // реализованный PnL в stake-валюте
	ClosedPercent float64
	AllCoin       float64
	TradeCount    int
}
