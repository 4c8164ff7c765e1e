// Package bot implements the gateway's turn handler.
//
// Every inbound message activity is remembered in the conversation registry,
// so operators can later push proactive messages into it, and answered with a
// reply rendered from the configured template:
//
//	h := bot.New(registry, connectorClient, bot.Options{
//		BotName:       "Mesa de ayuda",
//		ReplyTemplate: "Hola, recibí: {user_input}",
//	}, logger)
//	err := h.OnTurn(ctx, act)
//
// Other activity types (conversationUpdate, typing, invoke...) are ignored.
package bot
