package service

import "errors"

// Errors returned by the services. Handlers map these onto HTTP status
// codes with errors.Is; the strings double as client-facing messages.
var (
	// Lookup failures.
	ErrOrderNotFound    = errors.New("order not found")
	ErrTabNotFound      = errors.New("tab not found")
	ErrPaymentNotFound  = errors.New("no payment found for reference")
	ErrMenuItemNotFound = errors.New("menu item not found or inactive")

	// State conflicts.
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrTabNotOpen        = errors.New("tab is not open")
	ErrTabSettling       = errors.New("tab settlement is in progress")
	ErrOpenTabExists     = errors.New("table already has an open tab")
	ErrOrderOnAnotherTab = errors.New("order is attached to another tab")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrAlreadyPaid       = errors.New("already paid")

	// Validation failures.
	ErrEmptyItems          = errors.New("items are required")
	ErrInvalidOrderType    = errors.New("invalid order_type")
	ErrInvalidQuantity     = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID   = errors.New("invalid menu_item_id")
	ErrMissingIdentity     = errors.New("a user or guest identity is required")
	ErrConflictingIdentity = errors.New("provide either a user or guest details, not both")
	ErrMissingGuestContact = errors.New("guest orders require an email or phone number")
	ErrMissingTableNumber  = errors.New("table_number is required for dine-in orders")
	ErrMissingPickupTime   = errors.New("pickup_time is required for pickup orders")
	ErrInvalidPickupTime   = errors.New("invalid pickup_time")
	ErrMissingAddress      = errors.New("delivery_address is required for delivery orders")
	ErrInvalidTip          = errors.New("tip_amount must be >= 0")
	ErrInvalidDiscount     = errors.New("discount must be >= 0")
)
