package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrNoCriteria is returned when a lookup names nothing to filter on.
var ErrNoCriteria = errors.New("at least one search criterion is required")

type CustomerQuery struct {
	CustomerID string
	Phone      string
	Email      string
	Name       string
}

type OrderQuery struct {
	CustomerID string
	OrderID    string
	Status     string
	Limit      int
}

// filter accumulates AND-ed predicates with positional arguments. A "?" in a
// clause is replaced by the next placeholder.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(f.args))))
}

func (f *filter) empty() bool { return len(f.clauses) == 0 }

func (f *filter) where() string {
	if f.empty() {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// next returns the placeholder for an argument appended after the filter's.
func (f *filter) next(arg any) string {
	f.args = append(f.args, arg)
	return fmt.Sprintf("$%d", len(f.args))
}

// normalizePhone keeps the last ten digits so "+91 98765-43210" matches
// a stored "9876543210".
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

func customerFilter(q CustomerQuery) filter {
	var f filter
	if id := strings.TrimSpace(q.CustomerID); id != "" {
		f.add("customer_id = ?", strings.ToUpper(id))
	}
	if phone := normalizePhone(q.Phone); phone != "" {
		f.add("phone_number LIKE '%' || ? || '%'", phone)
	}
	if email := strings.TrimSpace(q.Email); email != "" {
		f.add("lower(email) = lower(?)", email)
	}
	if name := strings.TrimSpace(q.Name); name != "" {
		f.add("(first_name || ' ' || last_name) ILIKE '%' || ? || '%'", name)
	}
	return f
}

func orderFilter(q OrderQuery) filter {
	var f filter
	if id := strings.TrimSpace(q.OrderID); id != "" {
		f.add("order_id = ?", strings.ToUpper(id))
	}
	if id := strings.TrimSpace(q.CustomerID); id != "" {
		f.add("customer_id = ?", strings.ToUpper(id))
	}
	if status := strings.TrimSpace(q.Status); status != "" {
		f.add("order_status = ?", strings.ToLower(status))
	}
	return f
}

const customerColumns = `customer_id, first_name, last_name, email, phone_number, city, state,
	customer_tier, neucoins_balance, neucard_number, neucard_type, registered_date, last_activity_date`

// FindCustomers returns up to five customers matching every given criterion.
func (s *Store) FindCustomers(ctx context.Context, q CustomerQuery) ([]Customer, error) {
	f := customerFilter(q)
	if f.empty() {
		return nil, ErrNoCriteria
	}
	sql := "SELECT " + customerColumns + " FROM customers" + f.where() +
		" ORDER BY customer_id LIMIT " + f.next(5)

	out, err := collect[Customer](s.pool.Query(ctx, sql, f.args...))
	if err != nil {
		return nil, fmt.Errorf("find customers: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

const orderColumns = `order_id, customer_id, order_date, brand, amount, order_status,
	delivery_date, tracking_number, neucoins_earned, payment_method`

// Orders returns matching orders newest first, each with its line items.
// A customer or order id is required.
func (s *Store) Orders(ctx context.Context, q OrderQuery) ([]Order, error) {
	if strings.TrimSpace(q.CustomerID) == "" && strings.TrimSpace(q.OrderID) == "" {
		return nil, ErrNoCriteria
	}
	f := orderFilter(q)
	sql := "SELECT " + orderColumns + " FROM orders" + f.where() +
		" ORDER BY order_date DESC LIMIT " + f.next(clampLimit(q.Limit))

	orders, err := collect[Order](s.pool.Query(ctx, sql, f.args...))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	items, err := collect[OrderItem](s.pool.Query(ctx,
		`SELECT order_id, line_no, product_name, quantity, unit_price
		   FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids))
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	attachItems(orders, items)
	return orders, nil
}

func attachItems(orders []Order, items []OrderItem) {
	byOrder := make(map[string][]OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].OrderID]
		if orders[i].Items == nil {
			orders[i].Items = []OrderItem{}
		}
	}
}

func (s *Store) NeuCoinsHistory(ctx context.Context, customerID string, limit int) ([]NeuCoinsTransaction, error) {
	customerID = strings.ToUpper(strings.TrimSpace(customerID))
	if customerID == "" {
		return nil, ErrNoCriteria
	}
	out, err := collect[NeuCoinsTransaction](s.pool.Query(ctx,
		`SELECT transaction_id, transaction_date, transaction_type, neucoins_amount,
		        source, reference_id, description, balance_after
		   FROM neucoins_transactions
		  WHERE customer_id = $1
		  ORDER BY transaction_date DESC
		  LIMIT $2`, customerID, clampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("query neucoins history: %w", err)
	}
	return out, nil
}

// SearchFAQ ranks knowledge-base entries against a free-text query. An empty
// result is not an error.
func (s *Store) SearchFAQ(ctx context.Context, query string, topK int) ([]FAQDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoCriteria
	}
	if topK <= 0 {
		topK = 3
	}
	out, err := collect[FAQDocument](s.pool.Query(ctx,
		`SELECT id, title, content, source, ts_rank(search, q) AS rank
		   FROM faq_documents, websearch_to_tsquery('english', $1) AS q
		  WHERE search @@ q
		  ORDER BY rank DESC, id
		  LIMIT $2`, query, min(topK, maxLimit)))
	if err != nil {
		return nil, fmt.Errorf("search faq: %w", err)
	}
	return out, nil
}
