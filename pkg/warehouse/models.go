package warehouse

import "time"

type Customer struct {
	CustomerID       string     `db:"customer_id" json:"customer_id"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Email            *string    `db:"email" json:"email,omitempty"`
	PhoneNumber      *string    `db:"phone_number" json:"phone_number,omitempty"`
	City             *string    `db:"city" json:"city,omitempty"`
	State            *string    `db:"state" json:"state,omitempty"`
	Tier             string     `db:"customer_tier" json:"customer_tier"`
	NeuCoinsBalance  int64      `db:"neucoins_balance" json:"neucoins_balance"`
	NeuCardNumber    *string    `db:"neucard_number" json:"neucard_number,omitempty"`
	NeuCardType      *string    `db:"neucard_type" json:"neucard_type,omitempty"`
	RegisteredDate   time.Time  `db:"registered_date" json:"registered_date"`
	LastActivityDate *time.Time `db:"last_activity_date" json:"last_activity_date,omitempty"`
}

type Order struct {
	OrderID        string      `db:"order_id" json:"order_id"`
	CustomerID     string      `db:"customer_id" json:"customer_id"`
	OrderDate      time.Time   `db:"order_date" json:"order_date"`
	Brand          string      `db:"brand" json:"brand"`
	Amount         float64     `db:"amount" json:"amount"`
	Status         string      `db:"order_status" json:"order_status"`
	DeliveryDate   *time.Time  `db:"delivery_date" json:"delivery_date,omitempty"`
	TrackingNumber *string     `db:"tracking_number" json:"tracking_number,omitempty"`
	NeuCoinsEarned int64       `db:"neucoins_earned" json:"neucoins_earned"`
	PaymentMethod  string      `db:"payment_method" json:"payment_method"`
	Items          []OrderItem `db:"-" json:"items"`
}

type OrderItem struct {
	OrderID     string  `db:"order_id" json:"-"`
	LineNo      int32   `db:"line_no" json:"line_no"`
	ProductName string  `db:"product_name" json:"product_name"`
	Quantity    int32   `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
}

type NeuCoinsTransaction struct {
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	Date          time.Time `db:"transaction_date" json:"transaction_date"`
	Type          string    `db:"transaction_type" json:"transaction_type"`
	Amount        int64     `db:"neucoins_amount" json:"neucoins_amount"`
	Source        string    `db:"source" json:"source"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	Description   string    `db:"description" json:"description"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
}

// FAQDocument is one knowledge-base entry with its full-text rank for the
// query that found it.
type FAQDocument struct {
	ID      int64   `db:"id" json:"id"`
	Title   string  `db:"title" json:"title"`
	Content string  `db:"content" json:"content"`
	Source  string  `db:"source" json:"source"`
	Rank    float32 `db:"rank" json:"rank"`
}
