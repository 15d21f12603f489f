// Package core defines the shared contracts of the Parley turn router:
// the per-turn context value, the responder and coordinator capability
// interfaces, and the external collaborator contracts (knowledge retrieval
// and short-term conversation memory). It intentionally carries no
// third-party dependencies so every other package can depend on it without
// pulling in provider SDKs or storage drivers.
package core
