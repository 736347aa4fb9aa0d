package archive

import "testing"

func TestPromotionHeuristic(t *testing.T) {
	d := NewPromotionHeuristic(10, []string{"ul.comic-contain"})

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "small body triggers", body: "hi", want: true},
		{name: "missing selector triggers", body: "<html><body><div id=\"other\">enough bytes here</div></body></html>", want: true},
		{name: "all conditions satisfied", body: "<html><body><ul class=\"comic-contain\"><li></li></ul></body></html>", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.NeedsJS(Page{Body: []byte(tt.body)})
			if got != tt.want {
				t.Fatalf("expected %v got %v", tt.want, got)
			}
		})
	}
}

func TestPromotionHeuristicNoSelectors(t *testing.T) {
	d := NewPromotionHeuristic(0, nil)
	if d.NeedsJS(Page{Body: []byte("<html></html>")}) {
		t.Fatal("expected no promotion without thresholds")
	}
}
