package main

import (
	"net"
	"testing"
)

func TestConfigFlag(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"--config", "a.yaml"}, "a.yaml"},
		{[]string{"-config", "b.yaml"}, "b.yaml"},
		{[]string{"--log-level", "debug", "--config=c.yaml"}, "c.yaml"},
		{[]string{"-config=d.yaml"}, "d.yaml"},
		{[]string{"--config"}, ""},
	}
	for _, tt := range tests {
		if got := configFlag(tt.args); got != tt.want {
			t.Fatalf("configFlag(%q) = %q; want %q", tt.args, got, tt.want)
		}
	}
}

func TestDevtoolsURL(t *testing.T) {
	got := devtoolsURL(&net.TCPAddr{IP: net.IPv4zero, Port: 62000})
	if got != "devtools://devtools/bundled/inspector.html?ws=127.0.0.1:62000" {
		t.Fatalf("url = %q", got)
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	t.Setenv("CONFIG_FILE", t.TempDir()+"/missing.yaml")
	code := run([]string{
		"--log-level", "none",
		"--runtime-addr", ln.Addr().String(),
		"--frontend-addr", "127.0.0.1:0",
		"--status-addr", "",
	})
	if code != 1 {
		t.Fatalf("exit code = %d; want 1", code)
	}
}
