package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rental_dashboard/internal/domain"
)

const DemoStaffID = "u-staff"

// Seed fills empty repositories with a small demo portfolio anchored at now.
// Repositories that already hold properties are left untouched.
func Seed(ctx context.Context, repos Repositories, now time.Time) error {
	existing, err := repos.Properties.List(ctx, Filter{})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	day := 24 * time.Hour
	now = now.UTC().Truncate(time.Second)
	stamp := func(m *domain.Meta) {
		m.Stamp(uuid.NewString(), now, now)
	}

	lake := domain.Property{Name: "Lake House", Address: "1 Shore Rd", City: "Annecy", Bedrooms: 3, NightlyRate: 180}
	loft := domain.Property{Name: "City Loft", Address: "22 Quai Street", City: "Lyon", Bedrooms: 1, NightlyRate: 95}
	stamp(&lake.Meta)
	stamp(&loft.Meta)

	// Matches the staff account in configs/dashboard.yaml.
	staff := domain.User{Name: "Sam Staff", Email: "sam@example.com", Role: "staff"}
	staff.Stamp(DemoStaffID, now, now)

	bookings := []domain.Booking{
		{PropertyID: lake.ID, GuestName: "Rivera", CheckIn: now.Add(2 * day), CheckOut: now.Add(5 * day), TotalAmount: 540, Status: domain.BookingConfirmed},
		{PropertyID: loft.ID, GuestName: "Okafor", CheckIn: now.Add(-day), CheckOut: now.Add(2 * day), TotalAmount: 285, Status: domain.BookingConfirmed},
		{PropertyID: loft.ID, GuestName: "Lind", CheckIn: now.Add(10 * day), CheckOut: now.Add(12 * day), TotalAmount: 190, Status: domain.BookingPending},
	}
	transactions := []domain.Transaction{
		{PropertyID: lake.ID, Kind: domain.Expense, Category: "cleaning", Amount: 60, Date: now.Add(-3 * day)},
		{PropertyID: loft.ID, Kind: domain.Expense, Category: "repairs", Amount: 120, Date: now.Add(-7 * day)},
	}
	due := now.Add(day)
	tasks := []domain.Task{
		{PropertyID: lake.ID, Title: "Turnover clean", AssigneeID: staff.ID, Status: domain.TaskOpen, Priority: "high", DueDate: &due},
		{PropertyID: loft.ID, Title: "Replace smoke alarm battery", Status: domain.TaskOpen},
	}
	utilities := []domain.Utility{
		{PropertyID: lake.ID, Provider: "EDF", Kind: "electricity", Amount: 74.5, Period: now.AddDate(0, -1, 0)},
	}
	insuranceExpiry := now.Add(20 * day)
	permitExpiry := now.Add(90 * day)
	documents := []domain.Document{
		{PropertyID: lake.ID, Title: "Home insurance", Kind: "insurance", ExpiresAt: &insuranceExpiry},
		{PropertyID: loft.ID, Title: "Short-let permit", Kind: "permit", ExpiresAt: &permitExpiry},
	}

	for _, p := range []domain.Property{lake, loft} {
		if err := repos.Properties.Create(ctx, p); err != nil {
			return fmt.Errorf("seed property: %w", err)
		}
	}
	if err := repos.Users.Create(ctx, staff); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	for _, b := range bookings {
		stamp(&b.Meta)
		if err := repos.Bookings.Create(ctx, b); err != nil {
			return fmt.Errorf("seed booking: %w", err)
		}
	}
	for _, tx := range transactions {
		stamp(&tx.Meta)
		if err := repos.Transactions.Create(ctx, tx); err != nil {
			return fmt.Errorf("seed transaction: %w", err)
		}
	}
	for _, task := range tasks {
		stamp(&task.Meta)
		if err := repos.Tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("seed task: %w", err)
		}
	}
	for _, u := range utilities {
		stamp(&u.Meta)
		if err := repos.Utilities.Create(ctx, u); err != nil {
			return fmt.Errorf("seed utility: %w", err)
		}
	}
	for _, d := range documents {
		stamp(&d.Meta)
		if err := repos.Documents.Create(ctx, d); err != nil {
			return fmt.Errorf("seed document: %w", err)
		}
	}
	return nil
}
