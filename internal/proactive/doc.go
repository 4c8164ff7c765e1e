// Package proactive pushes operator-initiated messages into conversations the
// bot has already seen.
//
// A request names its target by conversation id, user id or AAD object id
// (resolved by the registry in that order) and carries a message, a payload,
// or both. Payloads of type "alerta" are rendered as an alert Adaptive Card
// and sent after the text. Every send attempt is written to the delivery log.
package proactive
