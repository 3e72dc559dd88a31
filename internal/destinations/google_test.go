package destinations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGoogleTestAdapter(t *testing.T, serverURL string) *GoogleAdapter {
	t.Helper()
	adapter, err := NewGoogleAdapter("12345", "", "fr", "MA", nopLogger{},
		WithGoogleAPIBase(serverURL), WithGoogleHTTPClient(http.DefaultClient))
	if err != nil {
		t.Fatalf("создание адаптера: %v", err)
	}
	return adapter
}

func TestGoogleUpsertOne(t *testing.T) {
	var captured contentProduct
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"id":"online:fr:MA:42"}`))
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter(t, server.URL)

	p := testProduct()
	p.HasSalePrice = true
	p.SalePriceMinor = 8500
	p.GoogleProductCategory = "Home & Garden > Lighting"

	res := adapter.UpsertOne(context.Background(), p)
	if !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}
	if res.RemoteID != "online:fr:MA:42" {
		t.Errorf("RemoteID = %q, ожидался полный идентификатор Content API", res.RemoteID)
	}
	if path != "/12345/products" {
		t.Errorf("путь = %q", path)
	}

	if captured.OfferID != "42" {
		t.Errorf("offerId = %q", captured.OfferID)
	}
	if captured.Channel != "online" {
		t.Errorf("channel = %q", captured.Channel)
	}
	if captured.ContentLanguage != "fr" || captured.TargetCountry != "MA" {
		t.Errorf("язык/страна = %q/%q", captured.ContentLanguage, captured.TargetCountry)
	}
	if captured.Price == nil || captured.Price.Value != "100.00" || captured.Price.Currency != "MAD" {
		t.Errorf("цена = %+v", captured.Price)
	}
	if captured.SalePrice == nil || captured.SalePrice.Value != "85.00" {
		t.Errorf("цена со скидкой = %+v", captured.SalePrice)
	}
	if captured.GoogleProductCategory != "Home & Garden > Lighting" {
		t.Errorf("категория = %q", captured.GoogleProductCategory)
	}
}

func TestGoogleUpsertWithoutSalePrice(t *testing.T) {
	var captured contentProduct
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter(t, server.URL)
	if res := adapter.UpsertOne(context.Background(), testProduct()); !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}
	if captured.SalePrice != nil {
		t.Errorf("без скидки salePrice не отправляется, получено %+v", captured.SalePrice)
	}
}

func TestGoogleDeleteFlipsAvailability(t *testing.T) {
	var method, path, rawQuery string
	var captured map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		rawQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter(t, server.URL)
	res := adapter.Delete(context.Background(), "42")
	if !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}

	if method != http.MethodPatch {
		t.Errorf("метод = %q, ожидался PATCH", method)
	}
	if path != "/12345/products/online:fr:MA:42" {
		t.Errorf("путь = %q", path)
	}
	if rawQuery != "updateMask=availability" {
		t.Errorf("запрос = %q", rawQuery)
	}
	if captured["availability"] != "out of stock" {
		t.Errorf("availability = %q", captured["availability"])
	}
}

func TestGoogleRateLimitTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":429}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := newGoogleTestAdapter(t, server.URL)
	res := adapter.UpsertOne(context.Background(), testProduct())
	if res.Success {
		t.Fatal("429 не должен считаться успехом")
	}
	if !res.Transient {
		t.Error("429 должен помечаться как временная ошибка")
	}
}
