package mongo

import (
	"fmt"
	"strings"
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

	ID                   string              `grove:"id,pk"                  bson:"_id"`
	Name                 string              `grove:"name"                   bson:"name"`
	Email                string              `grove:"email"                  bson:"email"`
	EmailKey             string              `grove:"email_key"              bson:"email_key"`
	Phone                string              `grove:"phone"                  bson:"phone"`
	Region               string              `grove:"region"                 bson:"region"`
	Currency             string              `grove:"currency"               bson:"currency"`
	PaymentType          string              `grove:"payment_type"           bson:"payment_type"`
	TaxRate              int64               `grove:"tax_rate"               bson:"tax_rate"`
	CurrentBalance       int64               `grove:"current_balance"        bson:"current_balance"`
	OutstandingBalance   int64               `grove:"outstanding_balance"    bson:"outstanding_balance"`
	CanOveruseInterviews bool                `grove:"can_overuse_interviews" bson:"can_overuse_interviews"`
	InterviewRate        int64               `grove:"interview_rate"         bson:"interview_rate"`
	Assignments          []assignmentModel   `grove:"assignments"            bson:"assignments"`
	ChangeRequest        *changeRequestModel `grove:"change_request"         bson:"change_request"`
	RenewalDate          *time.Time          `grove:"renewal_date"           bson:"renewal_date"`
	Version              int64               `grove:"version"                bson:"version"`
	CreatedAt            time.Time           `grove:"created_at"             bson:"created_at"`
	UpdatedAt            time.Time           `grove:"updated_at"             bson:"updated_at"`
}

type assignmentModel struct {
	ID                       string        `bson:"id"`
	Plan                     snapshotModel `bson:"plan"`
	StartDate                time.Time     `bson:"start_date"`
	EndDate                  *time.Time    `bson:"end_date,omitempty"`
	IsActive                 bool          `bson:"is_active"`
	RenewalDate              time.Time     `bson:"renewal_date"`
	IsProRated               bool          `bson:"is_pro_rated"`
	InterviewsUsed           int64         `bson:"interviews_used"`
	AdditionalInterviewsUsed int64         `bson:"additional_interviews_used"`
}

type snapshotModel struct {
	PlanID     string             `bson:"plan_id"`
	Name       string             `bson:"name"`
	Type       string             `bson:"type"`
	Package    *packageTermsModel `bson:"package,omitempty"`
	PayAsYouGo *paygTermsModel    `bson:"pay_as_you_go,omitempty"`
}

type packageTermsModel struct {
	Price                   int64  `bson:"price"`
	Validity                string `bson:"quota_validity"`
	InterviewsPerQuota      int64  `bson:"interviews_per_quota"`
	AdditionalInterviewRate int64  `bson:"additional_interview_rate"`
}

type paygTermsModel struct {
	InterviewRate int64 `bson:"interview_rate"`
}

type changeRequestModel struct {
	IsActive    bool      `bson:"is_active"`
	PlanID      string    `bson:"plan_id"`
	RequestedAt time.Time `bson:"requested_date"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	m := &customerModel{
		ID:                   c.ID.String(),
		Name:                 c.Name,
		Email:                c.Email,
		EmailKey:             strings.ToLower(c.Email),
		Phone:                c.Phone,
		Region:               c.Region,
		Currency:             c.Currency,
		PaymentType:          string(c.PaymentType),
		TaxRate:              c.TaxRate,
		CurrentBalance:       c.CurrentBalance,
		OutstandingBalance:   c.OutstandingBalance,
		CanOveruseInterviews: c.CanOveruseInterviews,
		InterviewRate:        c.InterviewRate,
		Assignments:          make([]assignmentModel, len(c.Assignments)),
		Version:              c.Version,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	for i, a := range c.Assignments {
		m.Assignments[i] = assignmentModel{
			ID:                       a.ID.String(),
			Plan:                     toSnapshotModel(a.Plan),
			StartDate:                a.StartDate,
			EndDate:                  a.EndDate,
			IsActive:                 a.IsActive,
			RenewalDate:              a.RenewalDate,
			IsProRated:               a.IsProRated,
			InterviewsUsed:           a.InterviewsUsed,
			AdditionalInterviewsUsed: a.AdditionalInterviewsUsed,
		}
		if a.IsActive {
			renewal := a.RenewalDate
			m.RenewalDate = &renewal
		}
	}
	if c.ChangeRequest != nil {
		m.ChangeRequest = &changeRequestModel{
			IsActive:    c.ChangeRequest.IsActive,
			PlanID:      c.ChangeRequest.PlanID.String(),
			RequestedAt: c.ChangeRequest.RequestedAt,
		}
	}
	return m
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

	for _, am := range m.Assignments {
		assignmentID, err := id.ParseAssignmentID(am.ID)
		if err != nil {
			return nil, err
		}
		snapshot, err := fromSnapshotModel(am.Plan)
		if err != nil {
			return nil, err
		}
		a := customer.Assignment{
			ID:                       assignmentID,
			Plan:                     snapshot,
			StartDate:                am.StartDate.UTC(),
			IsActive:                 am.IsActive,
			RenewalDate:              am.RenewalDate.UTC(),
			IsProRated:               am.IsProRated,
			InterviewsUsed:           am.InterviewsUsed,
			AdditionalInterviewsUsed: am.AdditionalInterviewsUsed,
		}
		if am.EndDate != nil {
			end := am.EndDate.UTC()
			a.EndDate = &end
		}
		c.Assignments = append(c.Assignments, a)
	}

	if m.ChangeRequest != nil {
		planID, err := id.ParsePlanID(m.ChangeRequest.PlanID)
		if err != nil {
			return nil, fmt.Errorf("change request of %s: %w", m.ID, err)
		}
		c.ChangeRequest = &customer.ChangeRequest{
			IsActive:    m.ChangeRequest.IsActive,
			PlanID:      planID,
			RequestedAt: m.ChangeRequest.RequestedAt.UTC(),
		}
	}
	return c, nil
}

func toSnapshotModel(s plan.Snapshot) snapshotModel {
	return snapshotModel{
		PlanID:     s.PlanID.String(),
		Name:       s.Name,
		Type:       string(s.Type),
		Package:    toPackageTermsModel(s.Package),
		PayAsYouGo: toPaygTermsModel(s.PayAsYouGo),
	}
}

func fromSnapshotModel(m snapshotModel) (plan.Snapshot, error) {
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return plan.Snapshot{}, err
	}
	return plan.Snapshot{
		PlanID:     planID,
		Name:       m.Name,
		Type:       plan.Type(m.Type),
		Package:    fromPackageTermsModel(m.Package),
		PayAsYouGo: fromPaygTermsModel(m.PayAsYouGo),
	}, nil
}

func toPackageTermsModel(t *plan.PackageTerms) *packageTermsModel {
	if t == nil {
		return nil
	}
	return &packageTermsModel{
		Price:                   t.Price,
		Validity:                string(t.Validity),
		InterviewsPerQuota:      t.InterviewsPerQuota,
		AdditionalInterviewRate: t.AdditionalInterviewRate,
	}
}

func fromPackageTermsModel(m *packageTermsModel) *plan.PackageTerms {
	if m == nil {
		return nil
	}
	return &plan.PackageTerms{
		Price:                   m.Price,
		Validity:                plan.Validity(m.Validity),
		InterviewsPerQuota:      m.InterviewsPerQuota,
		AdditionalInterviewRate: m.AdditionalInterviewRate,
	}
}

func toPaygTermsModel(t *plan.PayAsYouGoTerms) *paygTermsModel {
	if t == nil {
		return nil
	}
	return &paygTermsModel{InterviewRate: t.InterviewRate}
}

func fromPaygTermsModel(m *paygTermsModel) *plan.PayAsYouGoTerms {
	if m == nil {
		return nil
	}
	return &plan.PayAsYouGoTerms{InterviewRate: m.InterviewRate}
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:billing_plans"`

	ID          string             `grove:"id,pk"         bson:"_id"`
	Name        string             `grove:"name"          bson:"name"`
	Description string             `grove:"description"   bson:"description"`
	Type        string             `grove:"type"          bson:"type"`
	IsActive    bool               `grove:"is_active"     bson:"is_active"`
	Package     *packageTermsModel `grove:"package"       bson:"package,omitempty"`
	PayAsYouGo  *paygTermsModel    `grove:"pay_as_you_go" bson:"pay_as_you_go,omitempty"`
	Metadata    map[string]string  `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt   time.Time          `grove:"created_at"    bson:"created_at"`
	UpdatedAt   time.Time          `grove:"updated_at"    bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Type:        string(p.Type),
		IsActive:    p.IsActive,
		Package:     toPackageTermsModel(p.Package),
		PayAsYouGo:  toPaygTermsModel(p.PayAsYouGo),
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	return &plan.Plan{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          planID,
		Name:        m.Name,
		Description: m.Description,
		Type:        plan.Type(m.Type),
		IsActive:    m.IsActive,
		Package:     fromPackageTermsModel(m.Package),
		PayAsYouGo:  fromPaygTermsModel(m.PayAsYouGo),
		Metadata:    m.Metadata,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:billing_transactions"`

	ID            string    `grove:"id,pk"          bson:"_id"`
	Seq           int64     `grove:"seq"            bson:"seq"`
	CustomerID    string    `grove:"customer_id"    bson:"customer_id"`
	Type          string    `grove:"type"           bson:"type"`
	Status        string    `grove:"status"         bson:"status"`
	Direction     string    `grove:"direction"      bson:"direction"`
	Price         int64     `grove:"price"          bson:"price"`
	Tax           int64     `grove:"tax"            bson:"tax"`
	CalculatedTax int64     `grove:"calculated_tax" bson:"calculated_tax"`
	Amount        int64     `grove:"amount"         bson:"amount"`
	Note          string    `grove:"note"           bson:"note"`
	BalanceBefore int64     `grove:"balance_before" bson:"balance_before"`
	BalanceAfter  int64     `grove:"balance_after"  bson:"balance_after"`
	CreatedAt     time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"     bson:"updated_at"`
}

func toTransactionModel(t *transaction.Transaction, seq int64) *transactionModel {
	return &transactionModel{
		ID:            t.ID.String(),
		Seq:           seq,
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
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
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

	ID             string          `grove:"id,pk"           bson:"_id"`
	Seq            int64           `grove:"seq"             bson:"seq"`
	CustomerID     string          `grove:"customer_id"     bson:"customer_id"`
	Kind           string          `grove:"kind"            bson:"kind"`
	Status         string          `grove:"status"          bson:"status"`
	Currency       string          `grove:"currency"        bson:"currency"`
	IssuedDate     time.Time       `grove:"issued_date"     bson:"issued_date"`
	DueDate        time.Time       `grove:"due_date"        bson:"due_date"`
	TotalAmount    int64           `grove:"total_amount"    bson:"total_amount"`
	TotalPrice     int64           `grove:"total_price"     bson:"total_price"`
	TotalTax       int64           `grove:"total_tax"       bson:"total_tax"`
	LineItems      []lineItemModel `grove:"line_items"      bson:"line_items"`
	TransactionIDs []string        `grove:"transaction_ids" bson:"transaction_ids"`
	PaidAt         *time.Time      `grove:"paid_at"         bson:"paid_at,omitempty"`
	CreatedAt      time.Time       `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"      bson:"updated_at"`
}

type lineItemModel struct {
	Description string `bson:"description"`
	Amount      int64  `bson:"amount"`
}

func toInvoiceModel(inv *invoice.Invoice, seq int64) *invoiceModel {
	m := &invoiceModel{
		ID:             inv.ID.String(),
		Seq:            seq,
		CustomerID:     inv.CustomerID.String(),
		Kind:           string(inv.Kind),
		Status:         string(inv.Status),
		Currency:       inv.Currency,
		IssuedDate:     inv.IssuedDate,
		DueDate:        inv.DueDate,
		TotalAmount:    inv.TotalAmount,
		TotalPrice:     inv.TotalPrice,
		TotalTax:       inv.TotalTax,
		LineItems:      make([]lineItemModel, len(inv.LineItems)),
		TransactionIDs: make([]string, len(inv.TransactionIDs)),
		PaidAt:         inv.PaidAt,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	for i, li := range inv.LineItems {
		m.LineItems[i] = lineItemModel{Description: li.Description, Amount: li.Amount}
	}
	for i, tid := range inv.TransactionIDs {
		m.TransactionIDs[i] = tid.String()
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
	for _, li := range m.LineItems {
		inv.LineItems = append(inv.LineItems, invoice.LineItem{Description: li.Description, Amount: li.Amount})
	}
	for _, raw := range m.TransactionIDs {
		tid, err := id.ParseTransactionID(raw)
		if err != nil {
			return nil, err
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

	ID         string    `grove:"id,pk"       bson:"_id"`
	Seq        int64     `grove:"seq"         bson:"seq"`
	CustomerID string    `grove:"customer_id" bson:"customer_id"`
	InvoiceID  string    `grove:"invoice_id"  bson:"invoice_id"`
	Amount     int64     `grove:"amount"      bson:"amount"`
	Status     string    `grove:"status"      bson:"status"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment, seq int64) *paymentModel {
	return &paymentModel{
		ID:         p.ID.String(),
		Seq:        seq,
		CustomerID: p.CustomerID.String(),
		InvoiceID:  p.InvoiceID.String(),
		Amount:     p.Amount,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
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
