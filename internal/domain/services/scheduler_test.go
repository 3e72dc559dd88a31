package services

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{name: "обычное время", in: "02:30", hour: 2, minute: 30},
		{name: "полночь", in: "00:00", hour: 0, minute: 0},
		{name: "конец суток", in: "23:59", hour: 23, minute: 59},
		{name: "без ведущего нуля", in: "9:05", hour: 9, minute: 5},
		{name: "час вне диапазона", in: "24:00", wantErr: true},
		{name: "минута вне диапазона", in: "10:60", wantErr: true},
		{name: "мусор", in: "полдень", wantErr: true},
		{name: "пустая строка", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, err := parseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseClock(%q) должен вернуть ошибку", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseClock(%q): %v", tt.in, err)
			}
			if hour != tt.hour || minute != tt.minute {
				t.Errorf("parseClock(%q) = %d:%d, ожидалось %d:%d",
					tt.in, hour, minute, tt.hour, tt.minute)
			}
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		hour   int
		minute int
		want   time.Time
	}{
		{
			name: "время еще впереди сегодня",
			hour: 14, minute: 30,
			want: time.Date(2024, time.March, 15, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "время уже прошло, переносим на завтра",
			hour: 2, minute: 30,
			want: time.Date(2024, time.March, 16, 2, 30, 0, 0, time.UTC),
		},
		{
			name: "ровно сейчас считается прошедшим",
			hour: 10, minute: 0,
			want: time.Date(2024, time.March, 16, 10, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextOccurrence(now, tt.hour, tt.minute)
			if !got.Equal(tt.want) {
				t.Errorf("nextOccurrence = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}
