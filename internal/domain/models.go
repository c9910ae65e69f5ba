package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the canonical UTC layout used for created_at columns and
// upstream query parameters.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

const (
	ReceiptTypeSale   = "SALE"
	ReceiptTypeRefund = "REFUND"
)

type Receipt struct {
	ReceiptID     string          `json:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number"`
	ReceiptDate   string          `json:"receipt_date"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	StoreID       string          `json:"store_id"`
	CustomerID    string          `json:"customer_id"`
	EmployeeID    string          `json:"employee_id"`
	TotalMoney    decimal.Decimal `json:"total_money"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	ReceiptType   string          `json:"receipt_type"`
	Source        string          `json:"source"`
	DiningOption  string          `json:"dining_option"`
	LineItems     []LineItem      `json:"line_items"`
	Payments      []Payment       `json:"payments"`
	Raw           json.RawMessage `json:"-"`
}

type LineItem struct {
	LineItemID string          `json:"line_item_id"`
	ReceiptID  string          `json:"receipt_id"`
	ItemID     string          `json:"item_id"`
	VariantID  string          `json:"variant_id"`
	ItemName   string          `json:"item_name"`
	SKU        string          `json:"sku"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalMoney decimal.Decimal `json:"total_money"`
	Cost       decimal.Decimal `json:"cost"`
}

type Payment struct {
	ID            int64           `json:"id"`
	ReceiptID     string          `json:"receipt_id"`
	PaymentTypeID string          `json:"payment_type_id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	MoneyAmount   decimal.Decimal `json:"money_amount"`
	PaidAt        string          `json:"paid_at"`
}

type Customer struct {
	CustomerID   string          `json:"customer_id"`
	Name         string          `json:"name"`
	CustomerCode string          `json:"customer_code"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	TotalVisits  int             `json:"total_visits"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	FirstVisit   string          `json:"first_visit"`
	LastVisit    string          `json:"last_visit"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

type Store struct {
	StoreID      string          `json:"store_id"`
	Name         string          `json:"name"`
	AddressLine1 string          `json:"address_line1"`
	AddressLine2 string          `json:"address_line2"`
	City         string          `json:"city"`
	Country      string          `json:"country"`
	Phone        string          `json:"phone"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

type Employee struct {
	EmployeeID string          `json:"employee_id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

type PaymentType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Category is what the business calls a location: catalog items point at one.
type Category struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
}

type CatalogItem struct {
	ItemID     string          `json:"item_id"`
	VariantID  string          `json:"variant_id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	CategoryID string          `json:"category_id"`
	Price      decimal.Decimal `json:"price"`
	Cost       decimal.Decimal `json:"cost"`
}

// ManualCategory overrides the keyword categorizer. ItemID, when set, wins
// over ProductName so a rename upstream does not orphan the override.
type ManualCategory struct {
	ItemID      string    `json:"item_id,omitempty"`
	ProductName string    `json:"product_name"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SyncMetadata struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// DateBounds is the persisted created_at range. Both are nil when the store
// holds no receipts.
type DateBounds struct {
	Min *string `json:"min"`
	Max *string `json:"max"`
}

func (b DateBounds) Empty() bool {
	return b.Max == nil || *b.Max == ""
}

type ViewFilter struct {
	StartDate string `json:"start_date,omitempty" form:"start" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" form:"end" binding:"omitempty,datetime=2006-01-02"`
	StoreID   string `json:"store_id,omitempty" form:"store_id"`
}

// ViewRow is one (receipt, line item) pair of the reporting view. A receipt
// without line items yields a single row whose line fields are empty.
type ViewRow struct {
	Date            string              `json:"date"`
	ReceiptID       string              `json:"receipt_id"`
	StoreID         string              `json:"store_id"`
	CustomerID      string              `json:"customer_id"`
	BillNumber      string              `json:"bill_number"`
	DiningOption    string              `json:"dining_option"`
	EmployeeID      string              `json:"employee_id"`
	ReceiptType     string              `json:"receipt_type"`
	LineItemID      string              `json:"line_item_id,omitempty"`
	ItemID          string              `json:"item_id,omitempty"`
	SKU             string              `json:"sku,omitempty"`
	ItemName        string              `json:"item_name,omitempty"`
	Quantity        decimal.NullDecimal `json:"quantity"`
	Price           decimal.NullDecimal `json:"price"`
	LineTotal       decimal.NullDecimal `json:"line_total"`
	ReceiptTotal    decimal.Decimal     `json:"receipt_total"`
	ReceiptDiscount decimal.Decimal     `json:"receipt_discount"`
	ReceiptTax      decimal.Decimal     `json:"receipt_tax"`
	CategoryID      string              `json:"category_id,omitempty"`
	LocationName    string              `json:"location_name,omitempty"`
	PaymentTypeIDs  string              `json:"payment_type_ids"`
}

func (r ViewRow) HasLineItem() bool {
	return r.LineItemID != ""
}

type EnrichedRow struct {
	ViewRow
	CustomerName string `json:"customer_name"`
	PaymentName  string `json:"payment_name"`
	StoreName    string `json:"store_name"`
	EmployeeName string `json:"employee_name"`
}

// NetRow is an enriched row carrying its receipt's signed net. The value
// repeats across a receipt's line items.
type NetRow struct {
	EnrichedRow
	SignedNet decimal.Decimal `json:"signed_net"`
}

type SyncRange struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Mode   string    `json:"mode"`
	Reason string    `json:"reason"`
}

type SyncResult struct {
	RunID     string     `json:"run_id"`
	Entity    string     `json:"entity"`
	Range     *SyncRange `json:"range,omitempty"`
	Pages     int        `json:"pages"`
	Records   int        `json:"records"`
	Partial   bool       `json:"partial"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Duration  string     `json:"duration"`
}

type StoreStats struct {
	Backend          string         `json:"backend"`
	Degraded         bool           `json:"degraded"`
	Customers        int            `json:"customers"`
	Receipts         int            `json:"receipts"`
	LineItems        int            `json:"line_items"`
	Payments         int            `json:"payments"`
	PaymentTypes     int            `json:"payment_types"`
	Stores           int            `json:"stores"`
	Employees        int            `json:"employees"`
	Categories       int            `json:"categories"`
	Items            int            `json:"items"`
	ManualCategories int            `json:"manual_categories"`
	DateRange        DateBounds     `json:"date_range"`
	LastSyncs        []SyncMetadata `json:"last_syncs"`
}
