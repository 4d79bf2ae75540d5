package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/billing/customer"
	"github.com/xraph/billing/id"
	"github.com/xraph/billing/invoice"
	"github.com/xraph/billing/payment"
	"github.com/xraph/billing/plan"
	"github.com/xraph/billing/transaction"
	"github.com/xraph/billing/types"
)

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:billing_customers"`

	ID                   string          `grove:"id,pk"`
	Name                 string          `grove:"name"`
	Email                string          `grove:"email"`
	Phone                string          `grove:"phone"`
	Region               string          `grove:"region"`
	Currency             string          `grove:"currency"`
	PaymentType          string          `grove:"payment_type"`
	TaxRate              int64           `grove:"tax_rate"`
	CurrentBalance       int64           `grove:"current_balance"`
	OutstandingBalance   int64           `grove:"outstanding_balance"`
	CanOveruseInterviews bool            `grove:"can_overuse_interviews"`
	InterviewRate        int64           `grove:"interview_rate"`
	Assignments          json.RawMessage `grove:"assignments,type:jsonb"`
	ChangeRequest        json.RawMessage `grove:"change_request,type:jsonb"`
	RenewalDate          *time.Time      `grove:"renewal_date"`
	Version              int64           `grove:"version"`
	CreatedAt            time.Time       `grove:"created_at"`
	UpdatedAt            time.Time       `grove:"updated_at"`
}

// toCustomerModel encodes c. The renewal date of the active assignment is
// projected into its own column for the sweep index; it is NULL when there
// is no active assignment.
func toCustomerModel(c *customer.Customer) (*customerModel, error) {
	assignments := c.Assignments
	if assignments == nil {
		assignments = []customer.Assignment{}
	}
	rawAssignments, err := json.Marshal(assignments)
	if err != nil {
		return nil, fmt.Errorf("encode assignments: %w", err)
	}

	m := &customerModel{
		ID:                   c.ID.String(),
		Name:                 c.Name,
		Email:                c.Email,
		Phone:                c.Phone,
		Region:               c.Region,
		Currency:             c.Currency,
		PaymentType:          string(c.PaymentType),
		TaxRate:              c.TaxRate,
		CurrentBalance:       c.CurrentBalance,
		OutstandingBalance:   c.OutstandingBalance,
		CanOveruseInterviews: c.CanOveruseInterviews,
		InterviewRate:        c.InterviewRate,
		Assignments:          rawAssignments,
		Version:              c.Version,
		CreatedAt:            c.CreatedAt.UTC(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
	if c.ChangeRequest != nil {
		if m.ChangeRequest, err = json.Marshal(c.ChangeRequest); err != nil {
			return nil, fmt.Errorf("encode change request: %w", err)
		}
	}
	if a := c.ActiveAssignment(); a != nil {
		renewal := a.RenewalDate.UTC()
		m.RenewalDate = &renewal
	}
	return m, nil
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	customerID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}

	c := &customer.Customer{
		Entity:               types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                   customerID,
		Name:                 m.Name,
		Email:                m.Email,
		Phone:                m.Phone,
		Region:               m.Region,
		Currency:             m.Currency,
		PaymentType:          customer.PaymentType(m.PaymentType),
		TaxRate:              m.TaxRate,
		CurrentBalance:       m.CurrentBalance,
		OutstandingBalance:   m.OutstandingBalance,
		CanOveruseInterviews: m.CanOveruseInterviews,
		InterviewRate:        m.InterviewRate,
		Version:              m.Version,
	}
	if isJSON(m.Assignments) {
		if err := json.Unmarshal(m.Assignments, &c.Assignments); err != nil {
			return nil, fmt.Errorf("decode assignments of %s: %w", m.ID, err)
		}
	}
	if isJSON(m.ChangeRequest) {
		c.ChangeRequest = new(customer.ChangeRequest)
		if err := json.Unmarshal(m.ChangeRequest, c.ChangeRequest); err != nil {
			return nil, fmt.Errorf("decode change request of %s: %w", m.ID, err)
		}
	}
	return c, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:billing_plans"`

	ID          string            `grove:"id,pk"`
	Name        string            `grove:"name"`
	Description string            `grove:"description"`
	Type        string            `grove:"type"`
	IsActive    bool              `grove:"is_active"`
	Package     json.RawMessage   `grove:"package,type:jsonb"`
	PayAsYouGo  json.RawMessage   `grove:"pay_as_you_go,type:jsonb"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	pkg, _ := json.Marshal(p.Package)     //nolint:errcheck // plain structs
	payg, _ := json.Marshal(p.PayAsYouGo) //nolint:errcheck // plain structs
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &planModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Type:        string(p.Type),
		IsActive:    p.IsActive,
		Package:     nullJSON(pkg),
		PayAsYouGo:  nullJSON(payg),
		Metadata:    metadata,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          planID,
		Name:        m.Name,
		Description: m.Description,
		Type:        plan.Type(m.Type),
		IsActive:    m.IsActive,
	}
	if len(m.Metadata) > 0 {
		p.Metadata = m.Metadata
	}
	if isJSON(m.Package) {
		p.Package = new(plan.PackageTerms)
		if err := json.Unmarshal(m.Package, p.Package); err != nil {
			return nil, fmt.Errorf("decode package terms of %s: %w", m.ID, err)
		}
	}
	if isJSON(m.PayAsYouGo) {
		p.PayAsYouGo = new(plan.PayAsYouGoTerms)
		if err := json.Unmarshal(m.PayAsYouGo, p.PayAsYouGo); err != nil {
			return nil, fmt.Errorf("decode pay-as-you-go terms of %s: %w", m.ID, err)
		}
	}
	return p, nil
}

// ==================== Transaction models ====================

// transactionModel leaves out the seq column; the database assigns it and
// queries only order by it.
type transactionModel struct {
	grove.BaseModel `grove:"table:billing_transactions"`

	ID            string    `grove:"id,pk"`
	CustomerID    string    `grove:"customer_id"`
	Type          string    `grove:"type"`
	Status        string    `grove:"status"`
	Direction     string    `grove:"direction"`
	Price         int64     `grove:"price"`
	Tax           int64     `grove:"tax"`
	CalculatedTax int64     `grove:"calculated_tax"`
	Amount        int64     `grove:"amount"`
	Note          string    `grove:"note"`
	BalanceBefore int64     `grove:"balance_before"`
	BalanceAfter  int64     `grove:"balance_after"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:            t.ID.String(),
		CustomerID:    t.CustomerID.String(),
		Type:          string(t.Type),
		Status:        string(t.Status),
		Direction:     string(t.Direction),
		Price:         t.Details.Price,
		Tax:           t.Details.Tax,
		CalculatedTax: t.Details.CalculatedTax,
		Amount:        t.Details.Amount,
		Note:          t.Details.Note,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		CreatedAt:     t.CreatedAt.UTC(),
		UpdatedAt:     t.UpdatedAt.UTC(),
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	return &transaction.Transaction{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         txnID,
		CustomerID: customerID,
		Type:       transaction.Type(m.Type),
		Status:     transaction.Status(m.Status),
		Direction:  transaction.Direction(m.Direction),
		Details: transaction.Details{
			Price:         m.Price,
			Tax:           m.Tax,
			CalculatedTax: m.CalculatedTax,
			Amount:        m.Amount,
			Note:          m.Note,
		},
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:billing_invoices"`

	ID             string          `grove:"id,pk"`
	CustomerID     string          `grove:"customer_id"`
	Kind           string          `grove:"kind"`
	Status         string          `grove:"status"`
	Currency       string          `grove:"currency"`
	IssuedDate     time.Time       `grove:"issued_date"`
	DueDate        time.Time       `grove:"due_date"`
	TotalAmount    int64           `grove:"total_amount"`
	TotalPrice     int64           `grove:"total_price"`
	TotalTax       int64           `grove:"total_tax"`
	LineItems      json.RawMessage `grove:"line_items,type:jsonb"`
	TransactionIDs []string        `grove:"transaction_ids"`
	PaidAt         *time.Time      `grove:"paid_at"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := inv.LineItems
	if items == nil {
		items = []invoice.LineItem{}
	}
	lineItems, _ := json.Marshal(items) //nolint:errcheck // plain structs

	m := &invoiceModel{
		ID:             inv.ID.String(),
		CustomerID:     inv.CustomerID.String(),
		Kind:           string(inv.Kind),
		Status:         string(inv.Status),
		Currency:       inv.Currency,
		IssuedDate:     inv.IssuedDate.UTC(),
		DueDate:        inv.DueDate.UTC(),
		TotalAmount:    inv.TotalAmount,
		TotalPrice:     inv.TotalPrice,
		TotalTax:       inv.TotalTax,
		LineItems:      lineItems,
		TransactionIDs: idStrings(inv.TransactionIDs),
		CreatedAt:      inv.CreatedAt.UTC(),
		UpdatedAt:      inv.UpdatedAt.UTC(),
	}
	if inv.PaidAt != nil {
		at := inv.PaidAt.UTC()
		m.PaidAt = &at
	}
	return m
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          invID,
		CustomerID:  customerID,
		Kind:        invoice.Kind(m.Kind),
		Status:      invoice.Status(m.Status),
		Currency:    m.Currency,
		IssuedDate:  m.IssuedDate.UTC(),
		DueDate:     m.DueDate.UTC(),
		TotalAmount: m.TotalAmount,
		TotalPrice:  m.TotalPrice,
		TotalTax:    m.TotalTax,
	}
	if isJSON(m.LineItems) {
		if err := json.Unmarshal(m.LineItems, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("decode line items of %s: %w", m.ID, err)
		}
	}
	for _, raw := range m.TransactionIDs {
		tid, err := id.ParseTransactionID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode transaction ids of %s: %w", m.ID, err)
		}
		inv.TransactionIDs = append(inv.TransactionIDs, tid)
	}
	if m.PaidAt != nil {
		at := m.PaidAt.UTC()
		inv.PaidAt = &at
	}
	return inv, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:billing_payments"`

	ID         string    `grove:"id,pk"`
	CustomerID string    `grove:"customer_id"`
	InvoiceID  string    `grove:"invoice_id"`
	Amount     int64     `grove:"amount"`
	Status     string    `grove:"status"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:         p.ID.String(),
		CustomerID: p.CustomerID.String(),
		InvoiceID:  p.InvoiceID.String(),
		Amount:     p.Amount,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	customerID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}
	return &payment.Payment{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         paymentID,
		CustomerID: customerID,
		InvoiceID:  invID,
		Amount:     m.Amount,
		Status:     payment.Status(m.Status),
	}, nil
}

// ==================== Helpers ====================

// nullJSON maps an encoded nil pointer to SQL NULL.
func nullJSON(b []byte) json.RawMessage {
	if string(b) == "null" {
		return nil
	}
	return b
}

func isJSON(b json.RawMessage) bool {
	return len(b) > 0 && string(b) != "null"
}

func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}
