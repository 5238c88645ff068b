package main

import "testing"

func TestHTTPBase(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:8080/ws/tickers":         "http://localhost:8080",
		"wss://feed.example.com/ws/tickers?x=1": "https://feed.example.com",
	}
	for in, want := range cases {
		got, err := httpBase(in)
		if err != nil {
			t.Fatalf("httpBase(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("httpBase(%q) = %q, want %q", in, got, want)
		}
	}
}
