package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posdash/internal/domain"
)

const movingAverageWindow = 7

// DailySeries totals signed net per local day, filling gaps between the first
// and last day with zero, and adds a trailing 7-day moving average that uses
// whatever days are available at the start of the series.
func DailySeries(rows []domain.NetRow, loc *time.Location) []domain.DailyPoint {
	buckets := SumBy(rows, ByDay(loc))
	if len(buckets) == 0 {
		return []domain.DailyPoint{}
	}

	byDay := make(map[string]domain.NetSalesBucket, len(buckets))
	for _, b := range buckets {
		byDay[b.Key] = b
	}

	first, errFirst := time.Parse("2006-01-02", buckets[0].Key)
	last, errLast := time.Parse("2006-01-02", buckets[len(buckets)-1].Key)
	days := make([]string, 0, len(buckets))
	if errFirst != nil || errLast != nil {
		for _, b := range buckets {
			days = append(days, b.Key)
		}
	} else {
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			days = append(days, d.Format("2006-01-02"))
		}
	}

	points := make([]domain.DailyPoint, len(days))
	window := decimal.Zero
	for i, day := range days {
		b := byDay[day]
		points[i] = domain.DailyPoint{Date: day, SignedNet: b.SignedNet, Receipts: b.Receipts}

		window = window.Add(b.SignedNet)
		size := i + 1
		if i >= movingAverageWindow {
			window = window.Sub(points[i-movingAverageWindow].SignedNet)
			size = movingAverageWindow
		}
		points[i].MovingAvg7 = window.Div(decimal.NewFromInt(int64(size))).Round(2)
	}
	return points
}

// DefaultCreditKeywords match the payment types used for sales on account.
var DefaultCreditKeywords = []string{"ค้างชำระ", "เครดิต"}

const (
	dueSoonAfterDays = 15
	overdueAfterDays = 30
)

func creditStatus(days int) domain.CreditStatus {
	switch {
	case days > overdueAfterDays:
		return domain.CreditOverdue
	case days > dueSoonAfterDays:
		return domain.CreditDueSoon
	default:
		return domain.CreditCurrent
	}
}

func matchesAny(value string, keywords []string) bool {
	lower := strings.ToLower(value)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CreditAging groups receipts paid with a credit payment type by customer
// and ages each balance from its latest credit day to today.
func CreditAging(rows []domain.NetRow, keywords []string, now time.Time, loc *time.Location) []domain.CreditBalance {
	if len(keywords) == 0 {
		keywords = DefaultCreditKeywords
	}
	if loc == nil {
		loc = time.UTC
	}
	today, _ := time.Parse("2006-01-02", now.In(loc).Format("2006-01-02"))

	type acc struct {
		balance  domain.CreditBalance
		receipts map[string]struct{}
	}
	byCustomer := make(map[string]*acc)
	order := make([]string, 0)
	for _, row := range rows {
		if !matchesAny(row.PaymentName, keywords) {
			continue
		}
		a, ok := byCustomer[row.CustomerID]
		if !ok {
			a = &acc{
				balance:  domain.CreditBalance{CustomerID: row.CustomerID, CustomerName: row.CustomerName},
				receipts: make(map[string]struct{}),
			}
			byCustomer[row.CustomerID] = a
			order = append(order, row.CustomerID)
		}
		if _, counted := a.receipts[row.ReceiptID]; counted {
			continue
		}
		a.receipts[row.ReceiptID] = struct{}{}
		a.balance.Outstanding = a.balance.Outstanding.Add(row.SignedNet)

		day := LocalDay(row, loc)
		if a.balance.FirstCreditDate == "" || day < a.balance.FirstCreditDate {
			a.balance.FirstCreditDate = day
		}
		if day > a.balance.LastCreditDate {
			a.balance.LastCreditDate = day
		}
	}

	out := make([]domain.CreditBalance, 0, len(order))
	for _, id := range order {
		b := byCustomer[id].balance
		b.Receipts = len(byCustomer[id].receipts)
		if last, err := time.Parse("2006-01-02", b.LastCreditDate); err == nil {
			b.DaysOutstanding = int(today.Sub(last).Hours() / 24)
		}
		b.Status = creditStatus(b.DaysOutstanding)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outstanding.GreaterThan(out[j].Outstanding)
	})
	return out
}
