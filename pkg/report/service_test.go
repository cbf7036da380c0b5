package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	catalog := memory.NewMetadataStore()
	catalog.AddTable(models.DataTable{ID: 1, TableName: "orders"})
	catalog.AddField(models.Field{ID: 1, TableID: 1, ColumnName: "status", DisplayName: "Status", IsDimension: true})
	catalog.AddField(models.Field{ID: 2, TableID: 1, ColumnName: "amount", DisplayName: "Amount", DefaultAggregation: models.AggregationSum})

	return NewService(memory.NewReportStore(), catalog, logger.New("error"))
}

func TestCreateReport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	report, err := svc.Create(ctx, 10, models.ReportCreateRequest{
		Name:     "Monthly sales",
		FieldIDs: []int{1, 2},
		GroupBy:  []int{1},
	})
	require.NoError(t, err)
	assert.NotZero(t, report.ID)
	assert.Equal(t, 10, report.OwnerID)
	assert.Equal(t, []int{1, 2}, report.FieldIDs)
	assert.False(t, report.CreatedAt.IsZero())
}

func TestCreateReportValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 10, models.ReportCreateRequest{FieldIDs: []int{1}})
	assert.True(t, domain.IsValidation(err), "missing name must fail validation")

	_, err = svc.Create(ctx, 10, models.ReportCreateRequest{Name: "no fields"})
	assert.True(t, domain.IsValidation(err), "empty field list must fail validation")
}

func TestCreateReportUnknownField(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(context.Background(), 10, models.ReportCreateRequest{
		Name:     "bad",
		FieldIDs: []int{1, 999},
	})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeUnknownField, domainErr.Code)
}

func TestGetReportOwnership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	report, err := svc.Create(ctx, 10, models.ReportCreateRequest{Name: "mine", FieldIDs: []int{1}})
	require.NoError(t, err)

	got, err := svc.Get(ctx, report.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Name)

	_, err = svc.Get(ctx, report.ID, 99)
	assert.True(t, domain.IsNotFound(err), "another user's report reads as missing")
}

func TestUpdateReportPartial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	report, err := svc.Create(ctx, 10, models.ReportCreateRequest{Name: "before", FieldIDs: []int{1}})
	require.NoError(t, err)

	name := "after"
	updated, err := svc.Update(ctx, report.ID, 10, models.ReportUpdateRequest{
		Name:     &name,
		FieldIDs: []int{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)
	assert.Equal(t, []int{1, 2}, updated.FieldIDs)

	_, err = svc.Update(ctx, report.ID, 10, models.ReportUpdateRequest{FieldIDs: []int{777}})
	require.Error(t, err, "field check also applies on update")
}

func TestDeleteReport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	report, err := svc.Create(ctx, 10, models.ReportCreateRequest{Name: "gone", FieldIDs: []int{1}})
	require.NoError(t, err)

	require.Error(t, svc.Delete(ctx, report.ID, 99), "only the owner can delete")
	require.NoError(t, svc.Delete(ctx, report.ID, 10))

	_, err = svc.Get(ctx, report.ID, 10)
	assert.True(t, domain.IsNotFound(err))
}

func TestListReportsPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, 10, models.ReportCreateRequest{Name: "r", FieldIDs: []int{1}})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, 11, models.ReportCreateRequest{Name: "other", FieldIDs: []int{1}})
	require.NoError(t, err)

	page, total, err := svc.List(ctx, 10, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}
