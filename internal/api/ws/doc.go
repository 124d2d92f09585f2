// Package ws relays the viewer shell's commands to the navigation
// controller and pushes state changes back over WebSocket.
//
// Client to server:
//   - navigate {url}
//   - back, forward, reload, open_external
//   - ping
//
// Server to client:
//   - hello {client_id}, sent once on connect
//   - state {state}, sent on connect and after every change
//   - pong
//   - error {message}
//
// History moves are applied in the order commands arrive. The loads they
// start run concurrently so a new navigate can supersede one still
// loading. Their results arrive as state frames ordered by seq.
//
//	hub := ws.NewHandler(controller, logger, metrics)
//	router.GET("/ws", hub.HandleConnection)
package ws
