package domain

import (
	"sort"
	"time"
)

const DefaultExpiryWindow = 30 * 24 * time.Hour

type DashboardSummary struct {
	Properties        int       `json:"properties"`
	ActiveBookings    int       `json:"activeBookings"`
	UpcomingCheckIns  int       `json:"upcomingCheckIns"`
	OpenTasks         int       `json:"openTasks"`
	Income            float64   `json:"income"`
	Expenses          float64   `json:"expenses"`
	Net               float64   `json:"net"`
	ExpiringDocuments int       `json:"expiringDocuments"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

type PropertyFinance struct {
	PropertyID     string  `json:"propertyId"`
	PropertyName   string  `json:"propertyName,omitempty"`
	BookingRevenue float64 `json:"bookingRevenue"`
	OtherIncome    float64 `json:"otherIncome"`
	Expenses       float64 `json:"expenses"`
	UtilityCosts   float64 `json:"utilityCosts"`
	Net            float64 `json:"net"`
}

type FinanceAnalytics struct {
	TotalIncome   float64           `json:"totalIncome"`
	TotalExpenses float64           `json:"totalExpenses"`
	Net           float64           `json:"net"`
	ByProperty    []PropertyFinance `json:"byProperty"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

// Analyze folds bookings, transactions and utility bills into per-property
// income and expense totals. Cancelled bookings earn nothing.
func Analyze(properties []Property, bookings []Booking, transactions []Transaction, utilities []Utility, now time.Time) FinanceAnalytics {
	rows := make(map[string]*PropertyFinance)
	row := func(propertyID string) *PropertyFinance {
		r, ok := rows[propertyID]
		if !ok {
			r = &PropertyFinance{PropertyID: propertyID}
			rows[propertyID] = r
		}
		return r
	}
	for _, p := range properties {
		row(p.ID).PropertyName = p.Name
	}
	for _, b := range bookings {
		if b.Status == BookingCancelled {
			continue
		}
		row(b.PropertyID).BookingRevenue += b.TotalAmount
	}
	for _, t := range transactions {
		switch t.Kind {
		case Income:
			row(t.PropertyID).OtherIncome += t.Amount
		case Expense:
			row(t.PropertyID).Expenses += t.Amount
		}
	}
	for _, u := range utilities {
		row(u.PropertyID).UtilityCosts += u.Amount
	}

	out := FinanceAnalytics{ByProperty: make([]PropertyFinance, 0, len(rows)), GeneratedAt: now}
	for _, r := range rows {
		income := r.BookingRevenue + r.OtherIncome
		expenses := r.Expenses + r.UtilityCosts
		r.Net = income - expenses
		out.TotalIncome += income
		out.TotalExpenses += expenses
		out.ByProperty = append(out.ByProperty, *r)
	}
	out.Net = out.TotalIncome - out.TotalExpenses
	sort.Slice(out.ByProperty, func(i, j int) bool {
		return out.ByProperty[i].PropertyID < out.ByProperty[j].PropertyID
	})
	return out
}

// Expiring returns documents expiring within window of now, including those
// already expired, soonest first.
func Expiring(documents []Document, now time.Time, window time.Duration) []Document {
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	cutoff := now.Add(window)
	out := make([]Document, 0)
	for _, d := range documents {
		if d.ExpiresAt != nil && !d.ExpiresAt.After(cutoff) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
	})
	return out
}

type SummaryInput struct {
	Properties   []Property
	Bookings     []Booking
	Tasks        []Task
	Documents    []Document
	Finance      FinanceAnalytics
	ExpiryWindow time.Duration
	Now          time.Time
}

// Summarize builds the dashboard headline numbers. Upcoming check-ins are
// non-cancelled bookings starting within the next seven days.
func Summarize(in SummaryInput) DashboardSummary {
	summary := DashboardSummary{
		Properties:        len(in.Properties),
		Income:            in.Finance.TotalIncome,
		Expenses:          in.Finance.TotalExpenses,
		Net:               in.Finance.Net,
		ExpiringDocuments: len(Expiring(in.Documents, in.Now, in.ExpiryWindow)),
		GeneratedAt:       in.Now,
	}
	week := in.Now.Add(7 * 24 * time.Hour)
	for _, b := range in.Bookings {
		if b.Active(in.Now) {
			summary.ActiveBookings++
		}
		if b.Status != BookingCancelled && b.CheckIn.After(in.Now) && b.CheckIn.Before(week) {
			summary.UpcomingCheckIns++
		}
	}
	for _, t := range in.Tasks {
		if t.Status != TaskDone {
			summary.OpenTasks++
		}
	}
	return summary
}
