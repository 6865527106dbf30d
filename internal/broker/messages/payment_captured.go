package messages

import "time"

// PaymentCaptured приходит от платёжного шлюза и служит триггером перехода
// заказа pending -> confirmed.
type PaymentCaptured struct {
	OrderID     string    `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	CapturedAt  time.Time `json:"captured_at"`
}

// PaymentFailed переводит заказ в cancelled, если он ещё не терминальный.
type PaymentFailed struct {
	OrderID  string    `json:"order_id"`
	Reason   string    `json:"reason,omitempty"`
	FailedAt time.Time `json:"failed_at"`
}
