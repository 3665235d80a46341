package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/carelive/pkg/warehouse"
)

const (
	ToolLookupCustomer  = "lookup_customer"
	ToolLookupOrders    = "lookup_orders"
	ToolNeuCoinsHistory = "neucoins_history"
	ToolSearchFAQ       = "search_faq"
	ToolCurrentDate     = "get_current_date"
)

// Warehouse is the read side of the customer data store.
type Warehouse interface {
	FindCustomers(ctx context.Context, q warehouse.CustomerQuery) ([]warehouse.Customer, error)
	Orders(ctx context.Context, q warehouse.OrderQuery) ([]warehouse.Order, error)
	NeuCoinsHistory(ctx context.Context, customerID string, limit int) ([]warehouse.NeuCoinsTransaction, error)
	SearchFAQ(ctx context.Context, query string, topK int) ([]warehouse.FAQDocument, error)
}

type LookupCustomerArgs struct {
	CustomerID string `json:"customer_id,omitempty" jsonschema:"Tata Neu customer id, for example NEU001"`
	Phone      string `json:"phone,omitempty" jsonschema:"registered mobile number; any formatting"`
	Email      string `json:"email,omitempty" jsonschema:"registered email address"`
	Name       string `json:"name,omitempty" jsonschema:"full or partial customer name"`
}

type LookupOrdersArgs struct {
	CustomerID string `json:"customer_id,omitempty" jsonschema:"customer whose orders to list"`
	OrderID    string `json:"order_id,omitempty" jsonschema:"a single order id, for example ORD001"`
	Status     string `json:"status,omitempty" jsonschema:"filter by processing, shipped, delivered, cancelled or return_requested"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum orders to return, default 10"`
}

type NeuCoinsHistoryArgs struct {
	CustomerID string `json:"customer_id" jsonschema:"customer id, for example NEU001"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum transactions to return, default 10"`
}

type SearchFAQArgs struct {
	Query string `json:"query" jsonschema:"the customer's question about NeuCard products, fees, rewards or policies"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of passages to retrieve, default 3"`
}

type CurrentDateArgs struct{}

// CareTools builds the customer care tool set. With a nil warehouse only the
// date tool is available.
func CareTools(wh Warehouse, now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	out := []Tool{
		MustNewFuncTool(ToolCurrentDate,
			"Returns today's date for checking due dates, offer validity and other time-sensitive information.",
			func(context.Context, CurrentDateArgs) (any, error) { return currentDate(now()), nil }),
	}
	if wh == nil {
		return out
	}
	return append(out,
		MustNewFuncTool(ToolLookupCustomer,
			"Finds a customer's profile, tier, NeuCard summary and NeuCoins balance by id, phone, email or name.",
			func(ctx context.Context, a LookupCustomerArgs) (any, error) { return lookupCustomer(ctx, wh, a) }),
		MustNewFuncTool(ToolLookupOrders,
			"Lists a customer's orders newest first, or fetches one order, with items, status, delivery and tracking details.",
			func(ctx context.Context, a LookupOrdersArgs) (any, error) { return lookupOrders(ctx, wh, a) }),
		MustNewFuncTool(ToolNeuCoinsHistory,
			"Lists a customer's recent NeuCoins transactions: earned, redeemed, expired, bonus and reversals.",
			func(ctx context.Context, a NeuCoinsHistoryArgs) (any, error) { return neuCoinsHistory(ctx, wh, a) }),
		MustNewFuncTool(ToolSearchFAQ,
			"Searches the NeuCard FAQ knowledge base for fees, rewards, benefits and card policies.",
			func(ctx context.Context, a SearchFAQArgs) (any, error) { return searchFAQ(ctx, wh, a), nil }),
	)
}

func currentDate(now time.Time) map[string]any {
	return map[string]any{
		"current_date":           now.Format("2006-01-02"),
		"current_date_formatted": now.Format("02 January 2006"),
		"day":                    now.Day(),
		"month":                  int(now.Month()),
		"month_name":             now.Month().String(),
		"year":                   now.Year(),
	}
}

func lookupCustomer(ctx context.Context, wh Warehouse, a LookupCustomerArgs) (any, error) {
	customers, err := wh.FindCustomers(ctx, warehouse.CustomerQuery{
		CustomerID: a.CustomerID,
		Phone:      a.Phone,
		Email:      a.Email,
		Name:       a.Name,
	})
	switch {
	case errors.Is(err, warehouse.ErrNotFound):
		return map[string]any{"found": false, "message": "no customer matched the given details"}, nil
	case err != nil:
		return nil, err
	}
	return map[string]any{"found": true, "customers": customers}, nil
}

func lookupOrders(ctx context.Context, wh Warehouse, a LookupOrdersArgs) (any, error) {
	orders, err := wh.Orders(ctx, warehouse.OrderQuery{
		CustomerID: a.CustomerID,
		OrderID:    a.OrderID,
		Status:     a.Status,
		Limit:      a.Limit,
	})
	switch {
	case errors.Is(err, warehouse.ErrNotFound):
		return map[string]any{"found": false, "orders": []warehouse.Order{}}, nil
	case err != nil:
		return nil, err
	}
	return map[string]any{"found": true, "orders": orders, "count": len(orders)}, nil
}

func neuCoinsHistory(ctx context.Context, wh Warehouse, a NeuCoinsHistoryArgs) (any, error) {
	txns, err := wh.NeuCoinsHistory(ctx, a.CustomerID, a.Limit)
	if err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []warehouse.NeuCoinsTransaction{}
	}
	return map[string]any{"customer_id": strings.ToUpper(strings.TrimSpace(a.CustomerID)), "transactions": txns}, nil
}

// searchFAQ reports every outcome in-band, including failures.
func searchFAQ(ctx context.Context, wh Warehouse, a SearchFAQArgs) map[string]any {
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return map[string]any{
			"found": false,
			"error": "Query is required. Please provide a question about NeuCard or credit cards.",
		}
	}
	docs, err := wh.SearchFAQ(ctx, query, a.TopK)
	if err != nil {
		return map[string]any{"found": false, "error": fmt.Sprintf("Error retrieving information: %v", err)}
	}
	if len(docs) == 0 {
		return map[string]any{
			"found": false,
			"error": fmt.Sprintf("No information found in NeuCard FAQ knowledge base for: '%s'", query),
		}
	}
	passages := make([]string, 0, len(docs))
	for _, d := range docs {
		passages = append(passages, d.Title+"\n"+d.Content)
	}
	return map[string]any{
		"found":          true,
		"information":    strings.Join(passages, "\n\n---\n\n"),
		"document_count": len(docs),
		"original_query": query,
	}
}
