// Package email delivers the transactional messages the engine produces:
// verification links, password reset links, and the welcome message sent
// after an email is verified.
//
// Sender is the delivery contract. SMTPSender speaks SMTP via go-mail;
// NoOpSender discards everything for embedding without mail infrastructure.
// Dispatcher wraps any Sender with an asynchronous retry queue so the engine
// never blocks a request on an SMTP round trip.
package email
