package wire

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetlink/internal/domain"
)

func TestPing_EncodesEmptyObject(t *testing.T) {
	req := require.New(t)
	b, err := Ping().Encode()
	req.NoError(err)
	req.JSONEq(`{"type":"ping","data":{}}`, string(b))
}

func TestJoin_Encode(t *testing.T) {
	req := require.New(t)
	b, err := Join("u1").Encode()
	req.NoError(err)
	req.JSONEq(`{"type":"meeting_join","data":{"user_id":"u1"}}`, string(b))
}

func TestDecode_RejectsBadEnvelopes(t *testing.T) {
	req := require.New(t)

	_, err := Decode([]byte(`not json`))
	req.Error(err)

	_, err = Decode([]byte(`{"data":{}}`))
	req.ErrorIs(err, ErrEmptyType)
}

func TestMessage_User(t *testing.T) {
	req := require.New(t)

	m, err := Decode([]byte(`{"type":"meeting_leave","data":{"user_id":"u2"}}`))
	req.NoError(err)
	id, err := m.User()
	req.NoError(err)
	req.Equal(domain.UserID("u2"), id)

	m, err = Decode([]byte(`{"type":"meeting_leave","data":{}}`))
	req.NoError(err)
	_, err = m.User()
	req.ErrorIs(err, ErrMissingUser)

	m, err = Decode([]byte(`{"type":"meeting_leave"}`))
	req.NoError(err)
	_, err = m.User()
	req.ErrorIs(err, ErrMissingData)
}

func TestMessage_Presence(t *testing.T) {
	req := require.New(t)
	m, err := Decode([]byte(`{"type":"presence_update","data":{"online_users":[
		{"user_id":"u1","online":true},
		{"user_id":"u2","online":true,"role":"host"},
		{"online":true}
	]}}`))
	req.NoError(err)

	users, err := m.Presence()
	req.NoError(err)
	req.Equal([]domain.Participant{
		{UserID: "u1", Online: true},
		{UserID: "u2", Online: true, Role: "host"},
	}, users)
}

func TestMessage_Signal(t *testing.T) {
	req := require.New(t)
	m, err := Decode([]byte(`{"type":"meeting_signal","data":{
		"type":"offer","data":{"type":"offer","sdp":"v=0"},"from_user_id":"u2"}}`))
	req.NoError(err)

	env, err := m.Signal()
	req.NoError(err)
	req.Equal(domain.SignalOffer, env.Kind)
	req.Equal(domain.UserID("u2"), env.From)
	req.True(env.Broadcast())

	desc, err := DescriptionOf(env)
	req.NoError(err)
	req.Equal(webrtc.SDPTypeOffer, desc.Type)
	req.Equal("v=0", desc.SDP)
}

func TestMessage_SignalErrors(t *testing.T) {
	cases := map[string]string{
		"unknown kind":   `{"type":"meeting_signal","data":{"type":"bye","data":{},"from_user_id":"u2"}}`,
		"missing data":   `{"type":"meeting_signal","data":{"type":"offer","from_user_id":"u2"}}`,
		"missing sender": `{"type":"meeting_signal","data":{"type":"offer","data":{"type":"offer","sdp":"x"}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := Decode([]byte(raw))
			require.NoError(t, err)
			_, err = m.Signal()
			require.Error(t, err)
		})
	}
}

func TestDescriptionOf_KindMismatch(t *testing.T) {
	env := domain.SignalEnvelope{
		Kind:    domain.SignalAnswer,
		Payload: []byte(`{"type":"offer","sdp":"v=0"}`),
		From:    "u2",
	}
	_, err := DescriptionOf(env)
	require.Error(t, err)
}

func TestCandidateEnvelope_RoundTrip(t *testing.T) {
	req := require.New(t)
	mid := "0"
	idx := uint16(0)
	init := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	env, err := CandidateEnvelope("u1", "u2", init)
	req.NoError(err)
	req.Equal(domain.SignalICECandidate, env.Kind)

	msg, err := SignalMessage(env)
	req.NoError(err)
	b, err := msg.Encode()
	req.NoError(err)

	decoded, err := Decode(b)
	req.NoError(err)
	got, err := decoded.Signal()
	req.NoError(err)
	req.Equal(domain.UserID("u2"), got.To)

	c, err := CandidateOf(got)
	req.NoError(err)
	req.Equal(init, c)
}
