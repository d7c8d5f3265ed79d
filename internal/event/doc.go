// Package event defines the wire protocol shared by the sync client and
// the HobbyVerse realtime server: the event-name constants, the JSON
// envelope, and one typed payload struct per event. The set of names is
// closed; anything outside it is dropped by the router.
package event
