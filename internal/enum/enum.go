package enum

// ── State machines (CHECK constrained in DB) ──
//
// These strings are persisted and consumed by downstream clients.
// Do not rename existing values.

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusOutForDelivery = "out-for-delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

const (
	TabStatusOpen     = "open"
	TabStatusSettling = "settling"
	TabStatusClosed   = "closed"
)

// ── Classifiers ──

const (
	OrderTypeDineIn   = "dine-in"
	OrderTypePickup   = "pickup"
	OrderTypeDelivery = "delivery"
)

const (
	ExpenseTypeDirectCost = "direct-cost"
	ExpenseTypeOperating  = "operating-expense"
)

const (
	ItemCategoryFood  = "food"
	ItemCategoryDrink = "drink"
)

const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
	UserRoleStaff   = "staff"
)

// IsTerminalOrderStatus reports whether no further status transitions
// are permitted from s.
func IsTerminalOrderStatus(s string) bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}
