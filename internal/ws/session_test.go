package ws

import (
	"encoding/json"
	"testing"

	"github.com/nexuscards/battle/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Session) []frame {
	var out []frame
	for {
		select {
		case data := <-s.send:
			var f frame
			_ = json.Unmarshal(data, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

func patch(matchID string, seq int64) protocol.Message {
	return protocol.Message{
		Type:     protocol.TypeMatchPatch,
		MatchID:  matchID,
		Sequence: seq,
		Data:     protocol.MatchPatch{MatchID: matchID, SequenceNumber: seq},
	}
}

func TestDeliverNeverRepeatsASequence(t *testing.T) {
	s := newSession(NewHub(DefaultOptions()), nil, "alice", "")
	s.setState(StateAuthenticated)

	s.deliver(protocol.Message{Type: protocol.TypeMatchStart, MatchID: "m1", Sequence: 0})
	assert.Equal(t, StateInMatch, s.State())
	assert.Equal(t, "m1", s.MatchID())

	s.deliver(patch("m1", 1))
	s.deliver(patch("m1", 1))
	s.deliver(patch("m1", 2))
	s.deliver(protocol.Message{Type: protocol.TypeMatchSnapshot, MatchID: "m1", Sequence: 4})
	s.deliver(patch("m1", 3))
	s.deliver(patch("m1", 5))

	var seqs []int64
	for _, f := range drain(s) {
		if f.Type != protocol.TypeMatchPatch {
			continue
		}
		var p protocol.MatchPatch
		require.NoError(t, json.Unmarshal(f.Data, &p))
		seqs = append(seqs, p.SequenceNumber)
	}
	assert.Equal(t, []int64{1, 2, 5}, seqs)
}

func TestMatchEndUnbindsSession(t *testing.T) {
	s := newSession(NewHub(DefaultOptions()), nil, "alice", "")
	s.setState(StateAuthenticated)

	s.deliver(protocol.Message{Type: protocol.TypeMatchFound, MatchID: "m1"})
	assert.Equal(t, StateInMatch, s.State())

	s.deliver(protocol.Message{Type: protocol.TypeMatchEnd, MatchID: "m1", Sequence: 9})
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Empty(t, s.MatchID())
	assert.Len(t, drain(s), 2)
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	opts := DefaultOptions()
	opts.SendBuffer = 1
	s := newSession(NewHub(opts), nil, "alice", "")
	s.setState(StateAuthenticated)

	s.sendError(protocol.CodeInternal, "first")
	s.sendError(protocol.CodeInternal, "second")

	assert.Equal(t, StateDisconnected, s.State())
	select {
	case <-s.done:
	default:
		t.Fatal("session should be closed")
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "AUTHENTICATED", StateAuthenticated.String())
	assert.Equal(t, "IN_MATCH", StateInMatch.String())
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
}
