package core

import "time"

// Message is a store-and-forward mailbox entry. The payload is an opaque
// encrypted blob; the server never interprets it.
type Message struct {
	ID           string    // Unique message identifier
	RecipientID  string    // User ID the message is addressed to
	SenderIDHash string    // Opaque sender handle
	Ciphertext   []byte    // Encrypted payload, opaque to the server
	CreatedAt    time.Time // When the message was accepted
}
