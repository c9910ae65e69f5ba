package loyverse

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"posdash/internal/domain"
)

type wireReceipt struct {
	ID            string          `json:"id"`
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
	LineItems     []struct {
		ID         string          `json:"id"`
		ItemID     string          `json:"item_id"`
		VariantID  string          `json:"variant_id"`
		ItemName   string          `json:"item_name"`
		SKU        string          `json:"sku"`
		Quantity   decimal.Decimal `json:"quantity"`
		Price      decimal.Decimal `json:"price"`
		TotalMoney decimal.Decimal `json:"total_money"`
		Cost       decimal.Decimal `json:"cost"`
	} `json:"line_items"`
	Payments []struct {
		PaymentTypeID string          `json:"payment_type_id"`
		Name          string          `json:"name"`
		Type          string          `json:"type"`
		MoneyAmount   decimal.Decimal `json:"money_amount"`
		PaidAt        string          `json:"paid_at"`
	} `json:"payments"`
}

// decodeReceipt maps one upstream receipt. The receipt number stands in for a
// missing id; the raw object is kept verbatim.
func decodeReceipt(raw json.RawMessage) (domain.Receipt, error) {
	var w wireReceipt
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Receipt{}, fmt.Errorf("loyverse: decode receipt: %w", err)
	}
	id := w.ID
	if id == "" {
		id = w.ReceiptNumber
	}
	r := domain.Receipt{
		ReceiptID:     id,
		ReceiptNumber: w.ReceiptNumber,
		ReceiptDate:   w.ReceiptDate,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
		StoreID:       w.StoreID,
		CustomerID:    w.CustomerID,
		EmployeeID:    w.EmployeeID,
		TotalMoney:    w.TotalMoney,
		TotalTax:      w.TotalTax,
		TotalDiscount: w.TotalDiscount,
		ReceiptType:   w.ReceiptType,
		Source:        w.Source,
		DiningOption:  w.DiningOption,
		LineItems:     make([]domain.LineItem, 0, len(w.LineItems)),
		Payments:      make([]domain.Payment, 0, len(w.Payments)),
		Raw:           keep(raw),
	}
	for _, li := range w.LineItems {
		r.LineItems = append(r.LineItems, domain.LineItem{
			LineItemID: li.ID,
			ReceiptID:  id,
			ItemID:     li.ItemID,
			VariantID:  li.VariantID,
			ItemName:   li.ItemName,
			SKU:        li.SKU,
			Quantity:   li.Quantity,
			Price:      li.Price,
			TotalMoney: li.TotalMoney,
			Cost:       li.Cost,
		})
	}
	for _, p := range w.Payments {
		r.Payments = append(r.Payments, domain.Payment{
			ReceiptID:     id,
			PaymentTypeID: p.PaymentTypeID,
			Name:          p.Name,
			Type:          p.Type,
			MoneyAmount:   p.MoneyAmount,
			PaidAt:        p.PaidAt,
		})
	}
	return r, nil
}

func decodeCustomer(raw json.RawMessage) (domain.Customer, error) {
	var w struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		CustomerCode string          `json:"customer_code"`
		Email        string          `json:"email"`
		Phone        string          `json:"phone"`
		PhoneNumber  string          `json:"phone_number"`
		TotalVisits  int             `json:"total_visits"`
		TotalSpent   decimal.Decimal `json:"total_spent"`
		FirstVisit   string          `json:"first_visit"`
		LastVisit    string          `json:"last_visit"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Customer{}, fmt.Errorf("loyverse: decode customer: %w", err)
	}
	return domain.Customer{
		CustomerID:   w.ID,
		Name:         w.Name,
		CustomerCode: w.CustomerCode,
		Email:        w.Email,
		Phone:        firstNonEmpty(w.Phone, w.PhoneNumber),
		TotalVisits:  w.TotalVisits,
		TotalSpent:   w.TotalSpent,
		FirstVisit:   w.FirstVisit,
		LastVisit:    w.LastVisit,
		Raw:          keep(raw),
	}, nil
}

// address arrives either as a single line or as an object.
type address struct {
	Line1   string `json:"line_1"`
	Line2   string `json:"line_2"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func (a *address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &a.Line1)
	}
	type plain address
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = address(p)
	return nil
}

func decodeStore(raw json.RawMessage) (domain.Store, error) {
	var w struct {
		ID          string  `json:"id"`
		Name        string  `json:"name"`
		Address     address `json:"address"`
		Phone       string  `json:"phone"`
		PhoneNumber string  `json:"phone_number"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Store{}, fmt.Errorf("loyverse: decode store: %w", err)
	}
	return domain.Store{
		StoreID:      w.ID,
		Name:         w.Name,
		AddressLine1: w.Address.Line1,
		AddressLine2: w.Address.Line2,
		City:         w.Address.City,
		Country:      w.Address.Country,
		Phone:        firstNonEmpty(w.Phone, w.PhoneNumber),
		Raw:          keep(raw),
	}, nil
}

func decodeEmployee(raw json.RawMessage) (domain.Employee, error) {
	var w struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Employee{}, fmt.Errorf("loyverse: decode employee: %w", err)
	}
	return domain.Employee{
		EmployeeID: w.ID,
		Name:       w.Name,
		Email:      w.Email,
		Phone:      firstNonEmpty(w.Phone, w.PhoneNumber),
		Raw:        keep(raw),
	}, nil
}

// decodeItem flattens an item to its first variant.
func decodeItem(raw json.RawMessage) (domain.CatalogItem, error) {
	var w struct {
		ID         string `json:"id"`
		ItemName   string `json:"item_name"`
		Name       string `json:"name"`
		CategoryID string `json:"category_id"`
		Variants   []struct {
			VariantID    string          `json:"variant_id"`
			SKU          string          `json:"sku"`
			Price        decimal.Decimal `json:"price"`
			DefaultPrice decimal.Decimal `json:"default_price"`
			Cost         decimal.Decimal `json:"cost"`
		} `json:"variants"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("loyverse: decode item: %w", err)
	}
	item := domain.CatalogItem{
		ItemID:     w.ID,
		Name:       firstNonEmpty(w.ItemName, w.Name),
		CategoryID: w.CategoryID,
	}
	if len(w.Variants) > 0 {
		v := w.Variants[0]
		item.VariantID = v.VariantID
		item.SKU = v.SKU
		item.Price = v.Price
		if item.Price.IsZero() {
			item.Price = v.DefaultPrice
		}
		item.Cost = v.Cost
	}
	return item, nil
}

func keep(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
