package services

import (
	"errors"
	"testing"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/utils"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(NormalizerConfig{
		DefaultCurrency: "MAD",
		DefaultBrand:    "Hanaball",
		StoreBaseURL:    "https://shop.example.com",
	})
}

func TestNormalizeMissingIdentifier(t *testing.T) {
	n := testNormalizer()

	cases := []struct {
		name string
		raw  *models.RawProduct
	}{
		{"nil product", nil},
		{"empty id", &models.RawProduct{Name: "Lamp"}},
		{"whitespace id", &models.RawProduct{ID: "   ", Name: "Lamp"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(tc.raw)
			if !errors.Is(err, utils.ErrMissingIdentifier) {
				t.Errorf("ожидалась ErrMissingIdentifier, получено %v", err)
			}
		})
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	n := testNormalizer()

	p, err := n.Normalize(&models.RawProduct{
		ID:         "42",
		Name:       "Лампа настольная",
		Slug:       "lampa-nastolnaya",
		PriceMinor: 10000,
		Stock:      3,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if p.Description != "Лампа настольная" {
		t.Errorf("описание должно подменяться названием, получено %q", p.Description)
	}
	if p.CurrencyCode != "MAD" {
		t.Errorf("валюта по умолчанию MAD, получено %q", p.CurrencyCode)
	}
	if p.Brand != "Hanaball" {
		t.Errorf("бренд по умолчанию Hanaball, получено %q", p.Brand)
	}
	if p.URL != "https://shop.example.com/products/lampa-nastolnaya" {
		t.Errorf("URL должен собираться из slug, получено %q", p.URL)
	}
	if p.Condition != models.ConditionNew {
		t.Errorf("состояние по умолчанию new, получено %q", p.Condition)
	}
	if p.Availability != models.InStock {
		t.Errorf("товар с остатком должен быть in stock, получено %q", p.Availability)
	}
}

func TestNormalizeZeroStockForcesOutOfStock(t *testing.T) {
	n := testNormalizer()

	// Флаг каталога говорит "in stock", но остаток нулевой
	p, err := n.Normalize(&models.RawProduct{
		ID:           "42",
		Name:         "Lamp",
		Stock:        0,
		Availability: "in stock",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if p.Availability != models.OutOfStock {
		t.Errorf("нулевой остаток обязан давать out of stock, получено %q", p.Availability)
	}
}

func TestNormalizeSalePrice(t *testing.T) {
	n := testNormalizer()

	cases := []struct {
		name      string
		price     int64
		dtype     string
		discount  int64
		wantSale  bool
		wantMinor int64
	}{
		{"обычная скидка", 10000, "", 1500, true, 8500},
		{"фиксированная скидка", 10000, "fixed", 1500, true, 8500},
		{"процентная скидка", 10000, "percent", 15, true, 8500},
		{"процентная скидка 100", 10000, "percent", 100, false, 0},
		{"без скидки", 10000, "", 0, false, 0},
		{"скидка равна цене", 10000, "", 10000, false, 0},
		{"скидка больше цены", 10000, "", 12000, false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := n.Normalize(&models.RawProduct{
				ID:                  "42",
				Name:                "Lamp",
				PriceMinor:          tc.price,
				DiscountType:        tc.dtype,
				DiscountAmountMinor: tc.discount,
				Stock:               1,
			})
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if p.HasSalePrice != tc.wantSale {
				t.Fatalf("HasSalePrice = %v, ожидалось %v", p.HasSalePrice, tc.wantSale)
			}
			if tc.wantSale && p.SalePriceMinor != tc.wantMinor {
				t.Errorf("SalePriceMinor = %d, ожидалось %d", p.SalePriceMinor, tc.wantMinor)
			}
		})
	}
}

func TestNormalizeRelativeImages(t *testing.T) {
	n := testNormalizer()

	p, err := n.Normalize(&models.RawProduct{
		ID:               "42",
		Name:             "Lamp",
		Image:            "/storage/lamp.jpg",
		AdditionalImages: []string{"https://cdn.example.com/a.jpg", "storage/b.jpg", ""},
		Stock:            1,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if p.ImageURL != "https://shop.example.com/storage/lamp.jpg" {
		t.Errorf("относительный путь должен дополняться базовым URL, получено %q", p.ImageURL)
	}
	want := []string{"https://cdn.example.com/a.jpg", "https://shop.example.com/storage/b.jpg"}
	if len(p.AdditionalImageURLs) != len(want) {
		t.Fatalf("ожидалось %d изображений, получено %d", len(want), len(p.AdditionalImageURLs))
	}
	for i := range want {
		if p.AdditionalImageURLs[i] != want[i] {
			t.Errorf("изображение %d: получено %q, ожидалось %q", i, p.AdditionalImageURLs[i], want[i])
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := testNormalizer()
	raw := &models.RawProduct{
		ID:                  "42",
		Name:                "Lamp",
		PriceMinor:          10000,
		DiscountAmountMinor: 1500,
		Stock:               5,
	}

	first, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	second, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if first.ID != second.ID || first.PriceString() != second.PriceString() ||
		first.SalePriceString() != second.SalePriceString() || first.Availability != second.Availability {
		t.Error("нормализация одного входа должна давать одинаковый результат")
	}
}
