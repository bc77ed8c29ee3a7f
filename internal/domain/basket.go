package domain

type BasketItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// Basket is owned by the basket service and lives in Redis until checkout
// deletes it.
type Basket struct {
	ID      string       `json:"id"`
	BuyerID string       `json:"buyer_id"`
	Items   []BasketItem `json:"items"`
}
