package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shashiranjanraj/vidorder/app/models"
	"github.com/shashiranjanraj/vidorder/app/repositories"
	"github.com/shashiranjanraj/vidorder/pkg/apperr"
	"github.com/shashiranjanraj/vidorder/pkg/telemetry"
)

const recentOrdersLimit = 10

type OrderStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
}

type RevenueStats struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	MonthlyRevenue    float64 `json:"monthlyRevenue"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

type UserStats struct {
	Total    int64 `json:"total"`
	NewUsers int64 `json:"newUsers"`
}

// DashboardSummary is the admin dashboard payload.
type DashboardSummary struct {
	OrderStats   OrderStats              `json:"orderStats"`
	RevenueStats RevenueStats            `json:"revenueStats"`
	UserStats    UserStats               `json:"userStats"`
	RecentOrders []models.OrderWithOwner `json:"recentOrders"`
}

type DashboardService struct {
	orders repositories.OrderRepository
	users  repositories.UserRepository
	now    func() time.Time
}

func NewDashboardService(orders repositories.OrderRepository, users repositories.UserRepository) *DashboardService {
	return &DashboardService{orders: orders, users: users, now: utcNow}
}

// Summary runs the independent aggregates concurrently.
func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, error) {
	ctx, span := telemetry.Start(ctx, "DashboardService.Summary")
	defer span.End()

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	thirtyDaysAgo := now.AddDate(0, 0, -30)

	var (
		counts  map[models.OrderStatus]int64
		total   repositories.Revenue
		monthly repositories.Revenue
		users   int64
		newbies int64
		recent  []models.Order
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { counts, err = s.orders.CountByStatus(gctx); return })
	g.Go(func() (err error) { total, err = s.orders.Revenue(gctx, time.Time{}); return })
	g.Go(func() (err error) { monthly, err = s.orders.Revenue(gctx, monthStart); return })
	g.Go(func() (err error) { users, err = s.users.Count(gctx, time.Time{}); return })
	g.Go(func() (err error) { newbies, err = s.users.Count(gctx, thirtyDaysAgo); return })
	g.Go(func() (err error) { recent, err = s.orders.Recent(gctx, recentOrdersLimit); return })
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal("dashboard aggregates", err)
	}

	recentWithOwners, err := withOwners(ctx, s.users, recent)
	if err != nil {
		return nil, err
	}

	stats := OrderStats{
		Pending:    counts[models.StatusPending],
		Processing: counts[models.StatusProcessing],
		Completed:  counts[models.StatusCompleted],
		Cancelled:  counts[models.StatusCancelled],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Completed + stats.Cancelled

	var avg float64
	if total.Count > 0 {
		avg = total.Sum / float64(total.Count)
	}

	return &DashboardSummary{
		OrderStats: stats,
		RevenueStats: RevenueStats{
			TotalRevenue:      total.Sum,
			MonthlyRevenue:    monthly.Sum,
			AverageOrderValue: avg,
		},
		UserStats:    UserStats{Total: users, NewUsers: newbies},
		RecentOrders: recentWithOwners,
	}, nil
}
