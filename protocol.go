package main

import (
	"strings"
)

// MsgType is the TYPE half of a TYPE|payload frame
type MsgType string

// Message types
const (
	MsgJoin             MsgType = "JOIN"
	MsgChat             MsgType = "MSG"
	MsgVote             MsgType = "VOTE"
	MsgRole             MsgType = "ROLE"
	MsgState            MsgType = "STATE"
	MsgKill             MsgType = "KILL"
	MsgStart            MsgType = "START"
	MsgRestart          MsgType = "RESTART"
	MsgNightMsg         MsgType = "NIGHT_MSG"
	MsgNightVote        MsgType = "NIGHT_VOTE"
	MsgWitchAction      MsgType = "WITCH_ACTION"
	MsgSeerAction       MsgType = "SEER_ACTION"
	MsgSeerResult       MsgType = "SEER_RESULT"
	MsgHunterShoot      MsgType = "HUNTER_SHOOT"
	MsgRoleDistribution MsgType = "ROLE_DISTRIBUTION"

	// MsgInvalid is never sent; decode returns it for lines without a delimiter.
	MsgInvalid MsgType = "INVALID"
)

const frameDelimiter = "|"

// Witch night-vote payloads
const (
	witchSavePayload       = "witch_save"
	witchNonePayload       = "witch_none"
	witchKillPayloadPrefix = "witch_kill:"
	witchPayloadPrefix     = "witch_"
)

// Message is one decoded frame
type Message struct {
	Type    MsgType
	Payload string
}

// encodeMessage formats a frame without the trailing newline.
// encodeMessage(MsgChat, "hello") => "MSG|hello"
func encodeMessage(t MsgType, payload string) string {
	return strings.ToUpper(strings.TrimSpace(string(t))) + frameDelimiter + flattenPayload(payload)
}

// decodeMessage parses one line into a message.
// decodeMessage("ROLE|werewolf") => {ROLE werewolf}
func decodeMessage(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	msgType, payload, ok := strings.Cut(line, frameDelimiter)
	if !ok {
		return Message{Type: MsgInvalid, Payload: line}
	}
	return Message{
		Type:    MsgType(strings.ToUpper(strings.TrimSpace(msgType))),
		Payload: strings.TrimSpace(payload),
	}
}

// flattenPayload keeps a payload on a single line
func flattenPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if !strings.ContainsAny(payload, "\r\n") {
		return payload
	}
	return strings.Join(strings.Fields(payload), " ")
}

// witchChoice is the decoded form of a witch night-vote payload
type witchChoice int

const (
	witchUnknown witchChoice = iota
	witchSave
	witchNone
	witchKill
)

// isWitchPayload reports whether a NIGHT_VOTE belongs to the witch branch
func isWitchPayload(payload string) bool {
	return strings.HasPrefix(payload, witchPayloadPrefix)
}

// parseWitchPayload splits witch_save / witch_none / witch_kill:<name>
func parseWitchPayload(payload string) (witchChoice, string) {
	switch {
	case payload == witchSavePayload:
		return witchSave, ""
	case payload == witchNonePayload:
		return witchNone, ""
	case strings.HasPrefix(payload, witchKillPayloadPrefix):
		target := strings.TrimSpace(strings.TrimPrefix(payload, witchKillPayloadPrefix))
		if target == "" {
			return witchUnknown, ""
		}
		return witchKill, target
	default:
		return witchUnknown, ""
	}
}

// seerResultPayload formats the name:role answer sent to the seer
func seerResultPayload(name string, role Role) string {
	return name + ":" + string(role)
}
