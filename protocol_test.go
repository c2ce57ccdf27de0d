package main

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestEncodeMessage(t *testing.T) {
	tests := []struct {
		t       MsgType
		payload string
		want    string
	}{
		{MsgChat, "hello", "MSG|hello"},
		{MsgSeerAction, "", "SEER_ACTION|"},
		{MsgType(" state "), "  night ", "STATE|night"},
		{MsgChat, "line one\nline two\r\n  three", "MSG|line one line two three"},
		{MsgChat, "a|b", "MSG|a|b"},
	}
	for _, tt := range tests {
		if got := encodeMessage(tt.t, tt.payload); got != tt.want {
			t.Errorf("encodeMessage(%q, %q) = %q, want %q", tt.t, tt.payload, got, tt.want)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		line string
		want Message
	}{
		{"ROLE|werewolf", Message{MsgRole, "werewolf"}},
		{"join|alice\r\n", Message{MsgJoin, "alice"}},
		{"  vote |  bob  ", Message{MsgVote, "bob"}},
		{"START|", Message{MsgStart, ""}},
		{"MSG|a|b", Message{MsgChat, "a|b"}},
		{"NIGHT_VOTE|witch_kill:carol", Message{MsgNightVote, "witch_kill:carol"}},
		{"hello there", Message{MsgInvalid, "hello there"}},
		{"", Message{MsgInvalid, ""}},
	}
	for _, tt := range tests {
		if got := decodeMessage(tt.line); got != tt.want {
			t.Errorf("decodeMessage(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

// Frames with a single-line, trimmed payload survive a round trip
func TestFrameRoundTrip(t *testing.T) {
	f := func(payload string) bool {
		payload = strings.Join(strings.Fields(strings.ToValidUTF8(payload, "")), " ")
		got := decodeMessage(encodeMessage(MsgChat, payload))
		return got.Type == MsgChat && got.Payload == payload
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestEncodedFramesAreSingleLine(t *testing.T) {
	f := func(payload string) bool {
		return !strings.ContainsAny(encodeMessage(MsgState, payload), "\r\n")
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestParseWitchPayload(t *testing.T) {
	tests := []struct {
		payload string
		choice  witchChoice
		target  string
	}{
		{"witch_save", witchSave, ""},
		{"witch_none", witchNone, ""},
		{"witch_kill:bob", witchKill, "bob"},
		{"witch_kill: bob ", witchKill, "bob"},
		{"witch_kill:", witchUnknown, ""},
		{"witch_brew", witchUnknown, ""},
		{"bob", witchUnknown, ""},
	}
	for _, tt := range tests {
		choice, target := parseWitchPayload(tt.payload)
		if choice != tt.choice || target != tt.target {
			t.Errorf("parseWitchPayload(%q) = %v, %q; want %v, %q", tt.payload, choice, target, tt.choice, tt.target)
		}
	}

	if !isWitchPayload("witch_none") || isWitchPayload("alice") {
		t.Errorf("isWitchPayload misclassifies payloads")
	}
	if got := seerResultPayload("bob", RoleSeer); got != "bob:seer" {
		t.Errorf("seerResultPayload = %q", got)
	}
}
