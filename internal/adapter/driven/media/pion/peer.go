package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var endOfCandidates = json.RawMessage(`{"completed":true}`)

type Config struct {
	ICEServers []string
	// PLIInterval is how often a keyframe is requested for each received
	// video track. Zero uses 3s.
	PLIInterval time.Duration
}

// Peer is a receive-only PeerConnection negotiated through a gateway
// plugin: it makes the offer, takes the answer and trickles candidates.
type Peer struct {
	pc  *webrtc.PeerConnection
	cfg Config

	mu          sync.Mutex
	onCandidate func(json.RawMessage)
	pending     []json.RawMessage

	closed    chan struct{}
	closeOnce sync.Once
}

func NewPeer(cfg Config) (*Peer, error) {
	if cfg.PLIInterval <= 0 {
		cfg.PLIInterval = 3 * time.Second
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.ICEServers})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	p := &Peer{
		pc:     pc,
		cfg:    cfg,
		closed: make(chan struct{}),
	}
	pc.OnICECandidate(p.handleCandidate)
	pc.OnTrack(p.handleTrack)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("state", s.String()).Msg("Peer connection state changed")
	})
	return p, nil
}

func (p *Peer) handleCandidate(c *webrtc.ICECandidate) {
	var msg json.RawMessage
	if c == nil {
		msg = endOfCandidates
	} else {
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal candidate")
			return
		}
		msg = data
	}

	p.mu.Lock()
	cb := p.onCandidate
	if cb == nil {
		p.pending = append(p.pending, msg)
	}
	p.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

func (p *Peer) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	log.Debug().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("Received remote track")

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				if !errors.Is(err, io.EOF) {
					log.Debug().Err(err).Str("track_id", track.ID()).Msg("Remote track ended")
				}
				return
			}
		}
	}()

	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}
	go func() {
		ticker := time.NewTicker(p.cfg.PLIInterval)
		defer ticker.Stop()
		for {
			if err := p.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			}); err != nil {
				return
			}
			select {
			case <-p.closed:
				return
			case <-ticker.C:
			}
		}
	}()
}

// CreateOffer returns the local offer as a JSEP object. Candidates follow
// through OnLocalCandidate.
func (p *Peer) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return json.Marshal(p.pc.LocalDescription())
}

func (p *Peer) ApplyRemote(jsep json.RawMessage) error {
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal(jsep, &sdp); err != nil {
		return fmt.Errorf("decode jsep: %w", err)
	}
	log.Debug().Str("type", sdp.Type.String()).Int("sdp_len", len(sdp.SDP)).Msg("Setting remote description")
	return p.pc.SetRemoteDescription(sdp)
}

// AddRemoteCandidate takes a gateway trickle candidate. The end-of-candidates
// marker is accepted and ignored.
func (p *Peer) AddRemoteCandidate(candidate json.RawMessage) error {
	var c struct {
		Completed bool `json:"completed"`
		webrtc.ICECandidateInit
	}
	if err := json.Unmarshal(candidate, &c); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if c.Completed {
		return nil
	}
	return p.pc.AddICECandidate(c.ICECandidateInit)
}

// OnLocalCandidate sets the candidate callback. Candidates gathered before
// it was set are replayed.
func (p *Peer) OnLocalCandidate(cb func(candidate json.RawMessage)) {
	p.mu.Lock()
	p.onCandidate = cb
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		cb(c)
	}
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.pc.Close()
	})
	return err
}
