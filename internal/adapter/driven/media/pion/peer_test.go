package pion

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func TestPeer_OfferHasRecvOnlyMedia(t *testing.T) {
	p, err := NewPeer(Config{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer p.Close()

	jsep, err := p.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	var sdp struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(jsep, &sdp); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if sdp.Type != "offer" {
		t.Fatalf("unexpected type %q", sdp.Type)
	}
	for _, want := range []string{"m=audio", "m=video", "a=recvonly"} {
		if !strings.Contains(sdp.SDP, want) {
			t.Fatalf("offer lacks %q", want)
		}
	}
}

func TestPeer_ReportsEndOfCandidates(t *testing.T) {
	p, err := NewPeer(Config{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer p.Close()

	got := make(chan json.RawMessage, 64)
	p.OnLocalCandidate(func(c json.RawMessage) { got <- c })

	if _, err := p.CreateOffer(context.Background()); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case c := <-got:
			if string(c) == `{"completed":true}` {
				return
			}
		case <-deadline:
			t.Fatalf("gathering never completed")
		}
	}
}

func TestPeer_AppliesAnswer(t *testing.T) {
	p, err := NewPeer(Config{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	defer p.Close()

	offer, err := p.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	remote, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("remote peer: %v", err)
	}
	defer remote.Close()

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if err := remote.SetRemoteDescription(desc); err != nil {
		t.Fatalf("remote set offer: %v", err)
	}
	answer, err := remote.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("remote answer: %v", err)
	}
	if err := remote.SetLocalDescription(answer); err != nil {
		t.Fatalf("remote set answer: %v", err)
	}
	jsep, err := json.Marshal(remote.LocalDescription())
	if err != nil {
		t.Fatalf("encode answer: %v", err)
	}

	if err := p.ApplyRemote(jsep); err != nil {
		t.Fatalf("apply answer: %v", err)
	}
	if err := p.AddRemoteCandidate(json.RawMessage(`{"completed":true}`)); err != nil {
		t.Fatalf("end of candidates: %v", err)
	}
	if err := p.AddRemoteCandidate(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPeer_CloseIsIdempotent(t *testing.T) {
	p, err := NewPeer(Config{})
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
