package script

import (
	"context"
	"testing"
)

func BenchmarkExecute(b *testing.B) {
	eng := NewEngine()
	in := reportResultInput(`function reportResult(ad_selection_config, render_uri, bid) {
		registerAdBeacon({click: 'https://seller.example/click'});
		return {status: 0, results: {signals_for_buyer: '{}', reporting_uri: 'https://seller.example/r?bid=' + bid}};
	}`)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := eng.Execute(ctx, in); err != nil {
			b.Fatal(err)
		}
	}
}
