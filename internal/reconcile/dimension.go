package reconcile

import (
	"fmt"
	"strings"
	"time"

	"posdash/internal/domain"
	"posdash/internal/store"
)

type Dimension struct {
	Name string
	Key  func(row domain.NetRow) string
}

// Classifier assigns a product group to a sold item.
type Classifier interface {
	Category(itemID string, productName string) string
}

// LocalTime reads a row's created_at in loc. ok is false when the stored
// value cannot be parsed.
func LocalTime(row domain.NetRow, loc *time.Location) (time.Time, bool) {
	t, err := domain.ParseTimestamp(row.Date)
	if err != nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc), true
}

// LocalDay is the calendar day of the row in loc; unparseable timestamps fall
// back to their stored date prefix.
func LocalDay(row domain.NetRow, loc *time.Location) string {
	if t, ok := LocalTime(row, loc); ok {
		return t.Format("2006-01-02")
	}
	return store.DateOf(row.Date)
}

func ByDay(loc *time.Location) Dimension {
	return Dimension{Name: "day", Key: func(row domain.NetRow) string { return LocalDay(row, loc) }}
}

func ByHour(loc *time.Location) Dimension {
	return Dimension{Name: "hour", Key: func(row domain.NetRow) string {
		if t, ok := LocalTime(row, loc); ok {
			return fmt.Sprintf("%02d", t.Hour())
		}
		return "unknown"
	}}
}

var ByLocation = Dimension{Name: "location", Key: func(row domain.NetRow) string {
	if strings.TrimSpace(row.LocationName) == "" {
		return store.Uncategorized
	}
	return row.LocationName
}}

var ByCustomer = Dimension{Name: "customer", Key: func(row domain.NetRow) string {
	if row.CustomerName != "" {
		return row.CustomerName
	}
	return row.CustomerID
}}

var ByStore = Dimension{Name: "store", Key: func(row domain.NetRow) string {
	if row.StoreName != "" {
		return row.StoreName
	}
	return row.StoreID
}}

var ByPayment = Dimension{Name: "payment", Key: func(row domain.NetRow) string {
	if row.PaymentName != "" {
		return row.PaymentName
	}
	return row.PaymentTypeIDs
}}

func ByProductCategory(c Classifier) Dimension {
	return Dimension{Name: "category", Key: func(row domain.NetRow) string {
		return c.Category(row.ItemID, row.ItemName)
	}}
}

// DimensionNames are the values accepted by DimensionByName.
var DimensionNames = []string{"day", "hour", "location", "customer", "store", "payment", "category"}

func DimensionByName(name string, loc *time.Location, c Classifier) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "day":
		return ByDay(loc), nil
	case "hour":
		return ByHour(loc), nil
	case "location":
		return ByLocation, nil
	case "customer":
		return ByCustomer, nil
	case "store":
		return ByStore, nil
	case "payment":
		return ByPayment, nil
	case "category":
		if c == nil {
			return Dimension{}, fmt.Errorf("category dimension needs a classifier")
		}
		return ByProductCategory(c), nil
	default:
		return Dimension{}, fmt.Errorf("unknown dimension %q (want one of %s)", name, strings.Join(DimensionNames, ", "))
	}
}
