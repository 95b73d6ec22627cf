// Package pop3 implements a POP3 client: capability negotiation,
// USER/PASS, APOP, and SASL authentication, optional STLS upgrade,
// command pipelining, and a redacting protocol logger.
//
// Typical use constructs a Client, calls Connect, authenticates with
// one of the Authenticate methods, performs message operations while
// in the Transaction state, and calls Disconnect.
package pop3
