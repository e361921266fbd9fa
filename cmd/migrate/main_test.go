package main

import (
	"testing"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args    []string
		want    command
		wantErr bool
	}{
		{args: nil, want: command{name: "up"}},
		{args: []string{"up"}, want: command{name: "up"}},
		{args: []string{"version"}, want: command{name: "version"}},
		{args: []string{"down", "2"}, want: command{name: "down", arg: 2}},
		{args: []string{"force", "0"}, want: command{name: "force", arg: 0}},
		{args: []string{"down"}, wantErr: true},
		{args: []string{"down", "0"}, wantErr: true},
		{args: []string{"force", "x"}, wantErr: true},
		{args: []string{"sideways"}, wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseArgs(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseArgs(%v): expected error", tc.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseArgs(%v): %v", tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("parseArgs(%v) = %+v, want %+v", tc.args, got, tc.want)
		}
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	if err := run(nil, ""); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	if err := run([]string{"bogus"}, ""); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
