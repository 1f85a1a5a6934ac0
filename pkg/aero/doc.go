// Package aero is the client-side runtime of the shared-memory messaging
// transport. A Client connects to a co-located media driver through the CnC
// file, adds Publications and Subscriptions, and exchanges message fragments
// with peer clients through driver-managed log buffers.
//
// The driver owns the network. This library owns the in-process lifecycle,
// the command/response protocol with the driver, and the lock-free log
// buffer access path. Offers and polls never block and never make a system
// call.
package aero
