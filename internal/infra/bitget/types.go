package bitget

import "encoding/json"

const successCode = "00000"

// apiResponse is the common V2 envelope.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type assetData struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Locked    string `json:"locked"`
}

type orderBookData struct {
	Asks [][2]string `json:"asks"`
	Bids [][2]string `json:"bids"`
	Ts   string      `json:"ts"`
}

type symbolData struct {
	Symbol            string `json:"symbol"`
	BaseCoin          string `json:"baseCoin"`
	QuoteCoin         string `json:"quoteCoin"`
	MinTradeAmount    string `json:"minTradeAmount"`
	QuantityPrecision string `json:"quantityPrecision"`
	Status            string `json:"status"`
}

type placeOrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`      // buy, sell
	OrderType     string `json:"orderType"` // limit, market
	Force         string `json:"force"`     // gtc
	Size          string `json:"size"`
	ClientOrderID string `json:"clientOid"`
}

type placeOrderData struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOid"`
}

type orderInfoData struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOid"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"` // init, live, partially_filled, filled, cancelled
	BaseVolume    string `json:"baseVolume"`
	PriceAvg      string `json:"priceAvg"`
}
