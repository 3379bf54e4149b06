// Package engine routes every conversation event between clients and
// operators.
//
// # Client side
//
// A client's first message (or /start) opens a conversation and a short
// intake survey driven by a linear state machine:
//
//	CATEGORY -> NAME -> MOOD -> MOOD_Q1 -> MOOD_Q2 -> MOOD_Q3 -> CHAT
//
// Option answers (category, mood) are matched against the questionnaire's
// reply-keyboard buttons; anything else is forwarded into the topic as
// unclassified input and the question is asked again. Accepted answers are
// mirrored into the client's forum topic so operators can watch the intake
// in real time. Once in CHAT, client messages are forwarded into the topic
// verbatim.
//
// # Operator side
//
// Operator messages inside a bound topic are copied to the client without a
// forwarded-from header. /finish closes the conversation, says goodbye to
// the client, and produces the final export. Writing into a dormant topic
// opens a chat-phase conversation automatically so the exchange stays
// logged.
//
// # Ordering guarantee
//
// The engine always delivers before it persists. If a send fails, the
// conversation state is left untouched, so the client's next message replays
// the same step instead of silently skipping it.
//
// # Exports
//
// Each accepted survey answer schedules a live snapshot; finishing the
// survey schedules the start export; /finish schedules the end export.
// Scheduling never blocks message handling.
package engine
