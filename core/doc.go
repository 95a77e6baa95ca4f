// Package core implements the message-passing core of the handshake
// simulation.
//
// This package provides the Message value exchanged between parties, the
// shared Mailbox (a many-producer/one-consumer request queue paired with a
// single-slot addressed reply box), and the Responder and Requester state
// machines that drive it.
package core
