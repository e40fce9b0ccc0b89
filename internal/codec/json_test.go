package codec

import (
	"bytes"
	"testing"
)

func TestDecodeVersion(t *testing.T) {
	raw := []byte(`{"msgtype":"version","station":"2.0.6","firmware":"1.0","package":"test","model":"testgw","protocol":2,"features":"rmtsh"}`)

	mt, msg, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mt != MsgVersion {
		t.Fatalf("msgtype = %s, want version", mt)
	}
	v, ok := msg.(*Version)
	if !ok {
		t.Fatalf("got %T, want *Version", msg)
	}
	if v.Protocol != 2 {
		t.Fatalf("Protocol = %d, want 2", v.Protocol)
	}
}

func TestDecodeUnsupportedMsgType(t *testing.T) {
	raw := []byte(`{"msgtype":"bogus"}`)
	if _, _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatalf("expected error for unsupported msgtype")
	}
}

func TestEncodeRoundTripDownlink(t *testing.T) {
	dl := &Downlink{
		MsgType:  MsgDownlink,
		DevEUI:   "00-01-02-03-04-05-06-07",
		DIID:     42,
		PDU:      "deadbeef",
		RxDelay:  1,
		Priority: 0,
		XTime:    123456789,
		RCtx:     7,
	}

	data, err := Encode(dl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	mt, msg, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mt != MsgDownlink {
		t.Fatalf("msgtype = %s, want dnmsg", mt)
	}
	got, ok := msg.(*Downlink)
	if !ok {
		t.Fatalf("got %T, want *Downlink", msg)
	}
	if got.DIID != 42 || got.XTime != 123456789 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestDecodePropdfPassesThroughRaw(t *testing.T) {
	raw := []byte(`{"msgtype":"propdf","data":"whatever"}`)
	mt, _, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mt != MsgProprietary {
		t.Fatalf("msgtype = %s, want propdf", mt)
	}
}
