package oscctl

import (
	"net"
	"testing"

	"github.com/hypebeast/go-osc/osc"
)

func TestSendRequiresConfigure(t *testing.T) {
	s := NewSurface()
	if err := s.Send("/foo", nil); err == nil {
		t.Fatal("expected error sending before Configure")
	}
}

func TestSendTransmitsToConfiguredTarget(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	s := NewSurface()
	if err := s.Configure("127.0.0.1", port, 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := s.Send("/ping", []any{int32(1), "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if n == 0 {
		t.Fatal("expected a nonzero-length OSC packet")
	}
}

func TestAddAndRemoveEventCallback(t *testing.T) {
	s := NewSurface()
	var got []string
	h := s.AddEventCallback(func(address string, args []any) {
		got = append(got, address)
	})
	s.dispatch(osc.NewMessage("/note/on"))
	if len(got) != 1 || got[0] != "/note/on" {
		t.Fatalf("expected callback invocation, got %v", got)
	}
	s.RemoveEventCallback(h)
	s.dispatch(osc.NewMessage("/note/off"))
	if len(got) != 1 {
		t.Fatalf("expected no further callbacks after removal, got %v", got)
	}
}

func TestRemoveUnknownHandleIsNoop(t *testing.T) {
	s := NewSurface()
	s.RemoveEventCallback(Handle(999))
}
