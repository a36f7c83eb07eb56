package memcache

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkPipelined(b *testing.B, depth int, issue func(client *Client, i int) *Result) {
	client, _ := newServerClient(b, Config{})
	ctx := context.Background()

	if _, err := client.Set("key", "value", NoTTL, false).Wait(ctx); err != nil {
		b.Fatal(err)
	}

	results := make([]*Result, depth)
	for b.Loop() {
		for i := range results {
			results[i] = issue(client, i)
		}
		for _, res := range results {
			if _, err := res.Wait(ctx); err != nil {
				b.Fatal(err)
			}
		}
	}
	b.ReportMetric(float64(depth), "cmds/op")
}

// BenchmarkClient_Get benchmarks sequential gets
func BenchmarkClient_Get(b *testing.B) {
	benchmarkPipelined(b, 1, func(client *Client, _ int) *Result {
		return client.Get("key")
	})
}

// BenchmarkClient_Get_Pipelined benchmarks gets with many in flight
func BenchmarkClient_Get_Pipelined(b *testing.B) {
	for _, depth := range []int{8, 64} {
		b.Run(strconv.Itoa(depth), func(b *testing.B) {
			benchmarkPipelined(b, depth, func(client *Client, _ int) *Result {
				return client.Get("key")
			})
		})
	}
}

// BenchmarkClient_Set_Pipelined benchmarks sets with many in flight
func BenchmarkClient_Set_Pipelined(b *testing.B) {
	benchmarkPipelined(b, 64, func(client *Client, i int) *Result {
		return client.Set("key"+strconv.Itoa(i), "value", NoTTL, false)
	})
}

// BenchmarkClient_Set_NoReply benchmarks noreply sets followed by one get
func BenchmarkClient_Set_NoReply(b *testing.B) {
	benchmarkPipelined(b, 64, func(client *Client, i int) *Result {
		if i == 63 {
			return client.Get("key")
		}
		return client.Set("key"+strconv.Itoa(i), "value", NoTTL, true)
	})
}
