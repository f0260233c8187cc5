package notion

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func existingPage(id, url string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			"URL": &notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: url},
		},
	}
}

func TestExportPricesCreatesAndUpdates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{existingPage("page-1", "https://shop.example/winch")},
			HasMore: false,
		}, nil).Once()

	mc.On("UpdatePage", ctx, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		num, ok := req.Properties["Price"].(notionapi.NumberProperty)
		return ok && num.Number == 199.99
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		u, ok := req.Properties["URL"].(notionapi.URLProperty)
		return ok && u.URL == "https://shop.example/light" &&
			req.Parent.DatabaseID == notionapi.DatabaseID("db-1")
	})).Return(&notionapi.Page{ID: "page-2"}, nil).Once()

	winch := 199.99
	light := 49.99
	created, updated, err := NewExporter(mc, "db-1").ExportPrices(ctx, []PriceRow{
		{Name: "Winch", URL: "https://shop.example/winch", Price: &winch},
		{Name: "Light", URL: "https://shop.example/light", SKU: "L-100", Price: &light, ObservedAt: time.Now()},
		{Name: "No URL"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)
	mc.AssertExpectations(t)
}

func TestExportPricesQueryFailure(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	_, _, err := NewExporter(mc, "db-1").ExportPrices(ctx, []PriceRow{{Name: "X", URL: "https://x"}})
	require.Error(t, err)
	mc.AssertExpectations(t)
}

func TestAppendDrop(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		oldP, okOld := req.Properties["Old price"].(notionapi.NumberProperty)
		newP, okNew := req.Properties["New price"].(notionapi.NumberProperty)
		u, okURL := req.Properties["URL"].(notionapi.URLProperty)
		return okOld && okNew && oldP.Number == 100 && newP.Number == 80 &&
			okURL && u.URL == "https://shop.example/winch"
	})).Return(&notionapi.Page{ID: "alert-1"}, nil).Once()

	err := NewExporter(mc, "db-alerts").AppendDrop(ctx, DropRow{
		URL:      "https://shop.example/winch",
		OldPrice: 100,
		NewPrice: 80,
		Percent:  20,
		SeenAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestPricePropertiesURLShape(t *testing.T) {
	props := priceProperties(PriceRow{Name: "X", URL: "https://shop.example/winch"})
	u, ok := props["URL"].(notionapi.URLProperty)
	require.True(t, ok)
	assert.Equal(t, notionapi.PropertyTypeURL, u.Type)
	assert.Equal(t, "https://shop.example/winch", u.URL)
}

func TestPricePropertiesOmitsEmptyFields(t *testing.T) {
	props := priceProperties(PriceRow{Name: "X", URL: "https://x"})
	assert.Contains(t, props, "Name")
	assert.Contains(t, props, "URL")
	assert.NotContains(t, props, "SKU")
	assert.NotContains(t, props, "Price")
	assert.NotContains(t, props, "Checked")
}
