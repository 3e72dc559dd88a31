package destinations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/athebyme/catalog-sync/internal/domain/models"
)

type ebayCall struct {
	method string
	path   string
	body   map[string]any
}

// ebayTestServer записывает последовательность вызовов Inventory API
func ebayTestServer(t *testing.T, calls *[]ebayCall) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ebay-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Language"); got != "en-US" {
			t.Errorf("Content-Language = %q", got)
		}

		call := ebayCall{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&call.body)
		}
		*calls = append(*calls, call)

		if r.Method == http.MethodPost && r.URL.Path == "/sell/inventory/v1/offer" {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"offerId":"offer-1"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestEbayUpsertSequence(t *testing.T) {
	var calls []ebayCall
	server := ebayTestServer(t, &calls)
	defer server.Close()

	adapter := NewEbayAdapter("sandbox", "EBAY_FR", "hanaball-",
		NewStaticCredential("ebay-token"), nopLogger{}, WithEbayAPIBase(server.URL))

	p := testProduct()
	p.StockQuantity = 5
	p.HasSalePrice = true
	p.SalePriceMinor = 8500

	res := adapter.UpsertOne(context.Background(), p)
	if !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}
	if res.RemoteID != "hanaball-42" {
		t.Errorf("RemoteID = %q, ожидался SKU с префиксом", res.RemoteID)
	}

	// Листинг собирается тремя шагами в строгом порядке
	wantPaths := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/sell/inventory/v1/inventory_item/hanaball-42"},
		{http.MethodPost, "/sell/inventory/v1/offer"},
		{http.MethodPost, "/sell/inventory/v1/offer/offer-1/publish"},
	}
	if len(calls) != len(wantPaths) {
		t.Fatalf("ожидалось %d вызовов, выполнено %d", len(wantPaths), len(calls))
	}
	for i, want := range wantPaths {
		if calls[i].method != want.method || calls[i].path != want.path {
			t.Errorf("вызов %d = %s %s, ожидалось %s %s",
				i, calls[i].method, calls[i].path, want.method, want.path)
		}
	}

	offer := calls[1].body
	if offer["sku"] != "hanaball-42" {
		t.Errorf("sku оффера = %v", offer["sku"])
	}
	if offer["marketplaceId"] != "EBAY_FR" {
		t.Errorf("marketplaceId = %v", offer["marketplaceId"])
	}
	pricing := offer["pricingSummary"].(map[string]any)["price"].(map[string]any)
	if pricing["value"] != "85.00" {
		t.Errorf("при скидке в оффер идет цена со скидкой, получено %v", pricing["value"])
	}
	if pricing["currency"] != "MAD" {
		t.Errorf("валюта оффера = %v", pricing["currency"])
	}
}

func TestEbayUpsertZeroStockQuantity(t *testing.T) {
	var calls []ebayCall
	server := ebayTestServer(t, &calls)
	defer server.Close()

	adapter := NewEbayAdapter("sandbox", "", "hanaball-",
		NewStaticCredential("ebay-token"), nopLogger{}, WithEbayAPIBase(server.URL))

	p := testProduct()
	p.StockQuantity = 0

	if res := adapter.UpsertOne(context.Background(), p); !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}

	// Оффер с нулевым остатком eBay отклоняет, поэтому минимум единица
	offer := calls[1].body
	if got := offer["availableQuantity"].(float64); got != 1 {
		t.Errorf("availableQuantity = %v, ожидалось 1", got)
	}
}

func TestEbayDelete(t *testing.T) {
	var calls []ebayCall
	server := ebayTestServer(t, &calls)
	defer server.Close()

	adapter := NewEbayAdapter("sandbox", "", "hanaball-",
		NewStaticCredential("ebay-token"), nopLogger{}, WithEbayAPIBase(server.URL))

	res := adapter.Delete(context.Background(), "42")
	if !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}
	if len(calls) != 1 || calls[0].method != http.MethodDelete ||
		calls[0].path != "/sell/inventory/v1/inventory_item/hanaball-42" {
		t.Errorf("неожиданные вызовы: %+v", calls)
	}
}

func TestEbayDeleteMissingListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"errorId":25710}]}`, http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewEbayAdapter("sandbox", "", "hanaball-",
		NewStaticCredential("ebay-token"), nopLogger{}, WithEbayAPIBase(server.URL))

	res := adapter.Delete(context.Background(), "42")
	if !res.Success {
		t.Error("удаление несуществующего листинга должно считаться успехом")
	}
}

func TestEbayCondition(t *testing.T) {
	tests := []struct {
		in   models.Condition
		want string
	}{
		{models.ConditionNew, "NEW"},
		{models.ConditionUsed, "USED_GOOD"},
		{models.ConditionRefurbished, "SELLER_REFURBISHED"},
		{"", "NEW"},
	}
	for _, tt := range tests {
		if got := ebayCondition(tt.in); got != tt.want {
			t.Errorf("ebayCondition(%q) = %q, ожидалось %q", tt.in, got, tt.want)
		}
	}
}
