package anchor

import "testing"

func TestFindNth(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		marker string
		n      int
		want   int
		wantOK bool
	}{
		{name: "first", text: "a%b%c", marker: "%", n: 1, want: 1, wantOK: true},
		{name: "second", text: "a%b%c", marker: "%", n: 2, want: 3, wantOK: true},
		{name: "past end", text: "a%b%c", marker: "%", n: 5},
		{name: "zero n", text: "a%b%c", marker: "%", n: 0},
		{name: "empty marker", text: "a%b%c", marker: "", n: 1},
		{name: "non-overlapping", text: "aaaa", marker: "aa", n: 2, want: 2, wantOK: true},
		{name: "non-overlapping past end", text: "aaa", marker: "aa", n: 2},
		{name: "multi-byte marker", text: "n: 12 n: 40", marker: "n:", n: 2, want: 6, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindNth(tt.text, tt.marker, tt.n)
			if ok != tt.wantOK {
				t.Fatalf("FindNth() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("FindNth() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSliceBetween(t *testing.T) {
	text := "Delivery Address\n 12 Main St \nCustomer Information\nName: Jo\n"
	tests := []struct {
		name   string
		start  string
		end    string
		from   int
		want   string
		wantOK bool
	}{
		{name: "between markers", start: "Delivery Address", end: "Customer Information", want: "12 Main St", wantOK: true},
		{name: "missing start", start: "Pickup", end: "Customer Information"},
		{name: "missing end", start: "Name:", end: "Phone"},
		{name: "end before start only", start: "Name:", end: "Delivery"},
		{name: "from offset skips earlier start", start: "", end: "\n", from: 51, want: "Name: Jo", wantOK: true},
		{name: "negative offset", start: "Name:", end: "\n", from: -1},
		{name: "offset past end", start: "Name:", end: "\n", from: len(text) + 1},
		{name: "empty end marker", start: "Name:", end: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SliceBetween(text, tt.start, tt.end, tt.from)
			if ok != tt.wantOK {
				t.Fatalf("SliceBetween() ok = %v, want %v (got %q)", ok, tt.wantOK, got)
			}
			if got != tt.want {
				t.Errorf("SliceBetween() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSliceBetweenFold(t *testing.T) {
	text := "Item #100234 Sauce Packets THIS ITEM WAS moved. The Product is fine"
	got, ok := SliceBetweenFold(text, "#100234", "this item was", 0)
	if !ok || got != "Sauce Packets" {
		t.Fatalf("SliceBetweenFold() = %q, %v", got, ok)
	}
	if _, ok := SliceBetween(text, "#100234", "this item was", 0); ok {
		t.Fatal("SliceBetween() matched case-insensitively")
	}
}

func TestIndexFold(t *testing.T) {
	if idx, ok := IndexFold("abc ITEM #1", "item #", 0); !ok || idx != 4 {
		t.Fatalf("IndexFold() = %d, %v", idx, ok)
	}
	if _, ok := IndexFold("abc", "abcd", 0); ok {
		t.Fatal("IndexFold() matched a marker longer than the text")
	}
}

func TestCollapse(t *testing.T) {
	if got := Collapse("  a\n b\t\tc "); got != "a b c" {
		t.Fatalf("Collapse() = %q", got)
	}
}
