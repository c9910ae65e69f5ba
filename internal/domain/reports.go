package domain

import (
	"github.com/shopspring/decimal"
)

type NetSalesBucket struct {
	Key       string          `json:"key"`
	SignedNet decimal.Decimal `json:"signed_net"`
	Receipts  int             `json:"receipts"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type SalesSummary struct {
	TotalSales         decimal.Decimal `json:"total_sales"`
	TotalItems         decimal.Decimal `json:"total_items"`
	Receipts           int             `json:"receipts"`
	Refunds            int             `json:"refunds"`
	UniqueCustomers    int             `json:"unique_customers"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
	DaysInPeriod       int             `json:"days_in_period"`
	ItemsPerDay        decimal.Decimal `json:"items_per_day"`
	UnrecognizedTypes  []string        `json:"unrecognized_receipt_types,omitempty"`
}

type DailyPoint struct {
	Date       string          `json:"date"`
	SignedNet  decimal.Decimal `json:"signed_net"`
	Receipts   int             `json:"receipts"`
	MovingAvg7 decimal.Decimal `json:"moving_avg_7"`
}

type CreditStatus string

const (
	CreditCurrent CreditStatus = "current"
	CreditDueSoon CreditStatus = "due_soon"
	CreditOverdue CreditStatus = "overdue"
)

type CreditBalance struct {
	CustomerID      string          `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	Receipts        int             `json:"receipts"`
	FirstCreditDate string          `json:"first_credit_date"`
	LastCreditDate  string          `json:"last_credit_date"`
	DaysOutstanding int             `json:"days_outstanding"`
	Status          CreditStatus    `json:"status"`
}

type ReferenceStatus struct {
	Customers    int      `json:"customers"`
	PaymentTypes int      `json:"payment_types"`
	Stores       int      `json:"stores"`
	Employees    int      `json:"employees"`
	Missing      []string `json:"missing,omitempty"`
	LoadedAt     string   `json:"loaded_at,omitempty"`
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type ReceiptSyncRequest struct {
	Start   string `json:"start" binding:"required,datetime=2006-01-02"`
	End     string `json:"end" binding:"required,datetime=2006-01-02"`
	StoreID string `json:"store_id"`
}

type ManualCategoryRequest struct {
	Overrides []ManualCategoryInput `json:"overrides" binding:"required,dive"`
}

type ManualCategoryInput struct {
	ItemID      string `json:"item_id"`
	ProductName string `json:"product_name" binding:"required_without=ItemID"`
	Category    string `json:"category" binding:"required"`
}

// Actor is the authenticated operator behind a request.
type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// GroupForecast is the expected daily quantity of one product group.
type GroupForecast struct {
	Group        string          `json:"group"`
	QuantityAvg7 decimal.Decimal `json:"quantity_avg_7"`
	Days         int             `json:"days"`
}

// LocationForecast is the next-day outlook of one location.
type LocationForecast struct {
	Location  string          `json:"location"`
	SalesAvg7 decimal.Decimal `json:"sales_avg_7"`
	Groups    []GroupForecast `json:"groups"`
}
