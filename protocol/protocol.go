// Package protocol provides protocol drivers for use with the golum client.
// The only driver currently implemented is TNG, the stream-plus-datagram
// command protocol spoken by all known luminaire generations.
package protocol
