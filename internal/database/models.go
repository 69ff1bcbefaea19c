package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
}

type MenuItem struct {
	ID        uuid.UUID
	Name      string
	Category  string
	Price     pgtype.Numeric
	UnitCost  pgtype.Numeric
	Active    bool
	CreatedAt time.Time
}

type Tab struct {
	ID                   uuid.UUID
	TabNumber            string
	TableNumber          string
	Status               string
	Subtotal             pgtype.Numeric
	ServiceFee           pgtype.Numeric
	Tax                  pgtype.Numeric
	DiscountTotal        pgtype.Numeric
	TipAmount            pgtype.Numeric
	Total                pgtype.Numeric
	PaymentStatus        string
	PaymentReference     pgtype.Text
	TransactionReference pgtype.Text
	SettledBy            pgtype.UUID
	OpenedBy             pgtype.UUID
	OpenedAt             time.Time
	ClosedAt             pgtype.Timestamptz
	PaidAt               pgtype.Timestamptz
}

type Order struct {
	ID                   uuid.UUID
	OrderNumber          string
	TabID                pgtype.UUID
	UserID               pgtype.UUID
	GuestName            pgtype.Text
	GuestEmail           pgtype.Text
	GuestPhone           pgtype.Text
	OrderType            string
	TableNumber          pgtype.Text
	PickupTime           pgtype.Timestamptz
	DeliveryAddress      pgtype.Text
	Status               string
	PaymentStatus        string
	Subtotal             pgtype.Numeric
	Tax                  pgtype.Numeric
	ServiceFee           pgtype.Numeric
	DeliveryFee          pgtype.Numeric
	Discount             pgtype.Numeric
	Total                pgtype.Numeric
	PaymentReference     pgtype.Text
	TransactionReference pgtype.Text
	RefundAmount         pgtype.Numeric
	SettledBy            pgtype.UUID
	PaidAt               pgtype.Timestamptz
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	MenuItemID   uuid.UUID
	Name         string
	UnitPrice    pgtype.Numeric
	Quantity     int32
	Subtotal     pgtype.Numeric
	Instructions pgtype.Text
}

type OrderStatusHistory struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Status    string
	Note      pgtype.Text
	CreatedAt time.Time
}

type Reward struct {
	ID             uuid.UUID
	Name           string
	MinSubtotal    pgtype.Numeric
	DiscountAmount pgtype.Numeric
	Active         bool
}

type Expense struct {
	ID          uuid.UUID
	ExpenseDate time.Time
	ExpenseType string
	Category    string
	Amount      pgtype.Numeric
	Description pgtype.Text
	CreatedBy   pgtype.UUID
	CreatedAt   time.Time
}

type Setting struct {
	Key   string
	Value string
}
