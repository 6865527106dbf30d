package messages

import "time"

// OrderStatusChanged публикуется после каждого зафиксированного перехода
// статуса заказа. Key сообщения — order_id, чтобы переходы одного заказа
// попадали в одну партицию и сохраняли порядок коммитов.
type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Actor     string    `json:"actor,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
