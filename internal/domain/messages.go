package domain

// Integration message types. These are the only channel through which the
// basket, order, notification and scheduler services interact; none of them
// share a database.
const (
	MsgPlaceOrder           = "order.place"
	MsgCancelOrder          = "order.cancel"
	MsgCompleteOrder        = "order.complete"
	MsgDeleteBasket         = "basket.delete"
	MsgDeleteBasketComplete = "basket.delete.complete"
	MsgDeleteBasketFailed   = "basket.delete.failed"
	MsgCleanUpSentEmail     = "notifications.cleanup-sent"
	MsgResendErrorEmail     = "notifications.resend-failed"
)

type PlaceOrderCommand struct {
	OrderID string `json:"order_id"`
	Email   string `json:"email"`
	Total   int64  `json:"total"`
}

type CancelOrderCommand struct {
	OrderID  string `json:"order_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Total    int64  `json:"total"`
}

type CompleteOrderCommand struct {
	OrderID  string `json:"order_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Total    int64  `json:"total"`
}

// DeleteBasketCommand asks the basket service to clear the basket that was
// just turned into an order.
type DeleteBasketCommand struct {
	BasketID string `json:"basket_id"`
	OrderID  string `json:"order_id"`
	Email    string `json:"email"`
	Total    int64  `json:"total"`
}

type DeleteBasketCompleteCommand struct {
	OrderID string `json:"order_id"`
	Total   int64  `json:"total"`
}

type DeleteBasketFailedCommand struct {
	BasketID string `json:"basket_id"`
	Email    string `json:"email"`
	OrderID  string `json:"order_id"`
	Total    int64  `json:"total"`
}

// CleanUpSentEmailEvent and ResendErrorEmailEvent are empty triggers
// published by the scheduler.
type CleanUpSentEmailEvent struct{}

type ResendErrorEmailEvent struct{}
